/*
 * Copyright 2023 ICON Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/inkforge/inkforge/client"
	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/store"
)

const (
	ParamNetwork    = "network"
	ParamAddress    = "address"
	ParamMethod     = "method"
	ParamAccount    = "account"
	ContextNetwork  = "network"
	ContextContract = "contract"
	ContextRequest  = "request"
	GroupUrlApi     = "/api"
	GroupUrlMonitor = "/monitor"
	UrlSpec         = "/spec"

	WsHandshakeTimeout = time.Second * 3

	// registered contracts are kept in a bounded cache, a reregister
	// is cheap
	ContractCacheSize = 128
)

func Logger(l log.Logger) log.Logger {
	return l.WithFields(log.Fields{log.FieldKeyModule: "api"})
}

type Server struct {
	e           *echo.Echo
	addr        string
	nMap        map[string]*Network
	cCache      *lru.Cache
	deployments *store.DeploymentRepository
	mtx         sync.RWMutex
	u           websocket.Upgrader
	lv          log.Level
	l           log.Logger
}

func NewServer(addr string, transportLogLevel log.Level, l log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HttpErrorHandler
	cc, err := lru.New(ContractCacheSize)
	if err != nil {
		log.Panicf("fail to lru.New err:%+v", err)
	}
	return &Server{
		e:      e,
		addr:   addr,
		nMap:   make(map[string]*Network),
		cCache: cc,
		lv:     EnsureTransportLogLevel(transportLogLevel),
		l:      Logger(l),
	}
}

func (s *Server) AddNetwork(name string, n *Network) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if n.Keystore == nil {
		n.Keystore = client.NewKeystore("")
	}
	s.nMap[name] = n
}

func (s *Server) GetNetwork(name string) *Network {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.nMap[name]
}

func (s *Server) NetworkNames() []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	names := make([]string, 0, len(s.nMap))
	for name := range s.nMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDeployments enables the deployment history endpoint and the
// recording of deploys served by this server.
func (s *Server) SetDeployments(r *store.DeploymentRepository) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.deployments = r
}

func (s *Server) getDeployments() *store.DeploymentRepository {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.deployments
}

func (s *Server) AddContract(network string, n *Network, address contract.Address, b []byte) (*Contract, error) {
	con, err := NewContract(network, n, address, b, s.l)
	if err != nil {
		return nil, err
	}
	s.cCache.Add(con.Name(), con)
	return con, nil
}

func (s *Server) GetContract(network string, address contract.Address) *Contract {
	if v, ok := s.cCache.Get(ContractName(network, address)); ok {
		return v.(*Contract)
	}
	return nil
}

func (s *Server) Start() error {
	s.l.Infoln("starting the server")
	// CORS middleware
	s.e.Use(
		middleware.CORSWithConfig(middleware.CORSConfig{
			MaxAge: 3600,
		}),
		middleware.Recover())
	s.RegisterAPIHandler(s.e.Group(GroupUrlApi))
	s.RegisterMonitorHandler(s.e.Group(GroupUrlMonitor))
	s.RegisterSpecHandler(s.e)
	return s.e.Start(s.addr)
}

func (s *Server) Stop() error {
	s.l.Infoln("shutting down the server")

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// CallRequest carries the arguments of a query or an invocation, with
// an optional inline metadata document registering the contract on
// first use.
type CallRequest struct {
	Args     []string        `json:"args,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Options  CallOptions     `json:"options"`
}

type CallOptions struct {
	// Origin overrides the dry run caller of a query
	Origin string `json:"origin,omitempty"`
	// Signer picks the transaction signer, //dev, hex seed or
	// keystore name, the network default when empty
	Signer              string           `json:"signer,omitempty"`
	Value               string           `json:"value,omitempty"`
	Tip                 string           `json:"tip,omitempty"`
	GasLimit            *contract.Weight `json:"gasLimit,omitempty"`
	StorageDepositLimit string           `json:"storageDepositLimit,omitempty"`
	// At pins a query to a block hash
	At string `json:"at,omitempty"`
}

type RegisterRequest struct {
	Metadata json.RawMessage `json:"metadata" validate:"required"`
}

type DeployRequest struct {
	// Code holds the contract wasm as 0x hex, CodeHash instantiates
	// code already on chain instead
	Code        string          `json:"code,omitempty" validate:"required_without=CodeHash"`
	CodeHash    string          `json:"codeHash,omitempty"`
	Metadata    json.RawMessage `json:"metadata" validate:"required"`
	Constructor string          `json:"constructor,omitempty"`
	Args        []string        `json:"args,omitempty"`
	Salt        string          `json:"salt,omitempty"`
	Options     CallOptions     `json:"options"`
}

type UploadRequest struct {
	Code    string      `json:"code" validate:"required"`
	Options CallOptions `json:"options"`
}

type DeploymentsRequest struct {
	Page uint   `query:"page"`
	Size uint   `query:"size"`
	Sort string `query:"sort"`
}

type ChainInfo struct {
	Name          string `json:"name"`
	SpecName      string `json:"specName"`
	SpecVersion   uint32 `json:"specVersion"`
	TxVersion     uint32 `json:"transactionVersion"`
	GenesisHash   string `json:"genesisHash"`
	Finalized     uint64 `json:"finalized"`
	SS58Prefix    uint16 `json:"ss58Prefix"`
	TokenSymbol   string `json:"tokenSymbol"`
	TokenDecimals uint8  `json:"tokenDecimals"`
}

type BalanceResponse struct {
	Account  string `json:"account"`
	Free     string `json:"free"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type QueryResponse struct {
	Output      interface{}     `json:"output"`
	Reverted    bool            `json:"reverted,omitempty"`
	Debug       string          `json:"debug,omitempty"`
	GasConsumed contract.Weight `json:"gasConsumed"`
	GasRequired contract.Weight `json:"gasRequired"`
}

type InvokeResponse struct {
	TxHash         string                  `json:"txHash"`
	BlockHash      string                  `json:"blockHash"`
	ExtrinsicIndex uint32                  `json:"extrinsicIndex"`
	Events         []contract.DecodedEvent `json:"events,omitempty"`
}

type DeployResponse struct {
	Address   contract.Address        `json:"address"`
	CodeHash  string                  `json:"codeHash,omitempty"`
	TxHash    string                  `json:"txHash"`
	BlockHash string                  `json:"blockHash"`
	Events    []contract.DecodedEvent `json:"events,omitempty"`
}

type UploadResponse struct {
	CodeHash  string `json:"codeHash"`
	TxHash    string `json:"txHash"`
	BlockHash string `json:"blockHash"`
}

func (s *Server) RegisterAPIHandler(g *echo.Group) {
	g.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.NetworkNames())
	})
	networkApi := g.Group("/:" + ParamNetwork)
	networkApi.Use(middleware.BodyDump(func(c echo.Context, reqBody []byte, resBody []byte) {
		s.l.Debugf("url=%s", c.Request().RequestURI)
		s.l.Logf(s.lv, "request=%s", reqBody)
		s.l.Logf(s.lv, "response=%s", resBody)
	}), func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := c.Param(ParamNetwork)
			n := s.GetNetwork(p)
			if n == nil {
				return echo.NewHTTPError(http.StatusNotFound,
					fmt.Sprintf("Network(%s) not found", p))
			}
			c.Set(ContextNetwork, n)
			return next(c)
		}
	})
	networkApi.GET("", func(c echo.Context) error {
		n := c.Get(ContextNetwork).(*Network)
		ret, err := s.chainInfo(c.Request().Context(), c.Param(ParamNetwork), n)
		if err != nil {
			s.l.Errorf("fail to chainInfo err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, ret)
	})
	networkApi.GET("/balance/:"+ParamAccount, func(c echo.Context) error {
		n := c.Get(ContextNetwork).(*Network)
		account := contract.Address(c.Param(ParamAccount))
		pub, err := account.Bytes()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		ctx := c.Request().Context()
		free, err := client.BalanceOf(ctx, n.Client, pub)
		if err != nil {
			s.l.Errorf("fail to BalanceOf err:%+v", err)
			return err
		}
		props, err := n.Client.Properties(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, &BalanceResponse{
			Account:  string(account),
			Free:     free.String(),
			Symbol:   props.Symbol(),
			Decimals: props.Decimals(),
		})
	})
	networkApi.GET("/deployments", func(c echo.Context) error {
		r := s.getDeployments()
		if r == nil {
			return echo.NewHTTPError(http.StatusNotFound, "Deployments not enabled")
		}
		req := &DeploymentsRequest{}
		if err := c.Bind(req); err != nil {
			return echo.ErrBadRequest
		}
		ret, err := r.PageByNetwork(store.Pageable{
			Page: req.Page,
			Size: req.Size,
			Sort: req.Sort,
		}, c.Param(ParamNetwork))
		if err != nil {
			s.l.Errorf("fail to PageByNetwork err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, ret)
	})
	networkApi.POST("/deploy", func(c echo.Context) error {
		req := &DeployRequest{}
		if err := BindRequest(c, req); err != nil {
			s.l.Debugf("fail to BindRequest err:%+v", err)
			return echo.ErrBadRequest
		}
		if err := c.Validate(req); err != nil {
			return err
		}
		ret, err := s.deploy(c, req)
		if err != nil {
			s.l.Errorf("fail to deploy err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, ret)
	})
	networkApi.POST("/upload", func(c echo.Context) error {
		req := &UploadRequest{}
		if err := BindRequest(c, req); err != nil {
			s.l.Debugf("fail to BindRequest err:%+v", err)
			return echo.ErrBadRequest
		}
		if err := c.Validate(req); err != nil {
			return err
		}
		n := c.Get(ContextNetwork).(*Network)
		signer, err := n.ResolveSigner(req.Options.Signer)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		code, err := hexutil.Decode(req.Code)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		sdl, err := ParseAmount(req.Options.StorageDepositLimit)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		tip, err := ParseAmount(req.Options.Tip)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		h := client.NewHandler(nil, "", n.Client, s.l)
		if n.Pallet != "" {
			h.SetPallet(n.Pallet)
		}
		ret, err := h.UploadCode(c.Request().Context(), code, &client.UploadOptions{
			Signer:              signer,
			StorageDepositLimit: sdl,
			Tip:                 tip,
		})
		if err != nil {
			s.l.Errorf("fail to UploadCode err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, &UploadResponse{
			CodeHash:  ret.CodeHash,
			TxHash:    ret.TxHash,
			BlockHash: ret.BlockHash,
		})
	})

	contractApi := networkApi.Group("/:" + ParamAddress)
	contractApi.POST("", func(c echo.Context) error {
		req := &RegisterRequest{}
		if err := BindRequest(c, req); err != nil {
			s.l.Debugf("fail to BindRequest err:%+v", err)
			return echo.ErrBadRequest
		}
		if err := c.Validate(req); err != nil {
			return err
		}
		n := c.Get(ContextNetwork).(*Network)
		network, address := c.Param(ParamNetwork), contract.Address(c.Param(ParamAddress))
		if _, err := address.Bytes(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		con, err := s.AddContract(network, n, address, req.Metadata)
		if err != nil {
			s.l.Debugf("fail to AddContract err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, con.Info())
	})
	contractApi.GET("", func(c echo.Context) error {
		network, address := c.Param(ParamNetwork), contract.Address(c.Param(ParamAddress))
		con := s.GetContract(network, address)
		if con == nil {
			return echo.NewHTTPError(http.StatusNotFound,
				fmt.Sprintf("Contract(%s) not found", ContractName(network, address)))
		}
		return c.JSON(http.StatusOK, con.Info())
	})

	methodApi := contractApi.Group("/:" + ParamMethod)
	methodApi.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := &CallRequest{}
			if err := BindRequest(c, req); err != nil {
				s.l.Debugf("fail to BindRequest err:%+v", err)
				return echo.ErrBadRequest
			}
			if err := c.Validate(req); err != nil {
				s.l.Debugf("fail to Validate err:%+v", err)
				return err
			}
			c.Set(ContextRequest, req)

			network, address := c.Param(ParamNetwork), contract.Address(c.Param(ParamAddress))
			con := s.GetContract(network, address)
			if con == nil {
				if len(req.Metadata) == 0 {
					return echo.NewHTTPError(http.StatusNotFound,
						fmt.Sprintf("Contract(%s) not found", ContractName(network, address)))
				}
				n := c.Get(ContextNetwork).(*Network)
				var err error
				if con, err = s.AddContract(network, n, address, req.Metadata); err != nil {
					s.l.Debugf("fail to AddContract err:%+v", err)
					return err
				}
			}
			c.Set(ContextContract, con)

			pm := c.Param(ParamMethod)
			m, found := con.doc.Message(pm)
			if !found {
				return echo.NewHTTPError(http.StatusNotFound,
					fmt.Sprintf("Method(%s) not found", pm))
			}
			hm := c.Request().Method
			if m.Mutates {
				if hm != http.MethodPost {
					return echo.NewHTTPError(http.StatusMethodNotAllowed,
						fmt.Sprintf("HttpMethod(%s) not allowed, use POST", hm))
				}
			} else {
				if hm != http.MethodGet {
					return echo.NewHTTPError(http.StatusMethodNotAllowed,
						fmt.Sprintf("HttpMethod(%s) not allowed, use GET", hm))
				}
			}
			return next(c)
		}
	})
	methodApi.GET("", func(c echo.Context) error {
		req := c.Get(ContextRequest).(*CallRequest)
		con := c.Get(ContextContract).(*Contract)
		opts := &client.QueryOptions{
			Origin: contract.Address(req.Options.Origin),
		}
		var err error
		if opts.Value, err = ParseAmount(req.Options.Value); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		if req.Options.At != "" {
			if opts.At, err = hexutil.Decode(req.Options.At); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err)
			}
		}
		ret, err := con.h.Query(c.Request().Context(), c.Param(ParamMethod), req.Args, opts)
		if err != nil {
			s.l.Errorf("fail to Query err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, &QueryResponse{
			Output:      ret.Output,
			Reverted:    ret.Reverted,
			Debug:       ret.Debug,
			GasConsumed: ret.GasConsumed,
			GasRequired: ret.GasRequired,
		})
	})
	methodApi.POST("", func(c echo.Context) error {
		req := c.Get(ContextRequest).(*CallRequest)
		con := c.Get(ContextContract).(*Contract)
		n := c.Get(ContextNetwork).(*Network)
		signer, err := n.ResolveSigner(req.Options.Signer)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		opts := &client.InvokeOptions{
			Signer:   signer,
			GasLimit: req.Options.GasLimit,
		}
		if opts.Value, err = ParseAmount(req.Options.Value); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		if opts.Tip, err = ParseAmount(req.Options.Tip); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		if opts.StorageDepositLimit, err = ParseAmount(req.Options.StorageDepositLimit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err)
		}
		ret, err := con.h.Invoke(c.Request().Context(), c.Param(ParamMethod), req.Args, opts)
		if err != nil {
			s.l.Errorf("fail to Invoke err:%+v", err)
			return err
		}
		return c.JSON(http.StatusOK, &InvokeResponse{
			TxHash:         ret.TxHash,
			BlockHash:      ret.BlockHash,
			ExtrinsicIndex: ret.ExtrinsicIndex,
			Events:         ret.Events,
		})
	})
}

func (s *Server) chainInfo(ctx context.Context, name string, n *Network) (*ChainInfo, error) {
	rv, err := n.Client.RuntimeVersion(ctx)
	if err != nil {
		return nil, err
	}
	gh, err := n.Client.GenesisHash(ctx)
	if err != nil {
		return nil, err
	}
	props, err := n.Client.Properties(ctx)
	if err != nil {
		return nil, err
	}
	fh, err := n.Client.FinalizedHead(ctx)
	if err != nil {
		return nil, err
	}
	hdr, err := n.Client.Header(ctx, fh)
	if err != nil {
		return nil, err
	}
	return &ChainInfo{
		Name:          name,
		SpecName:      rv.SpecName,
		SpecVersion:   rv.SpecVersion,
		TxVersion:     rv.TransactionVersion,
		GenesisHash:   hexutil.Encode(gh),
		Finalized:     uint64(hdr.Number),
		SS58Prefix:    props.Prefix(),
		TokenSymbol:   props.Symbol(),
		TokenDecimals: props.Decimals(),
	}, nil
}

func (s *Server) deploy(c echo.Context, req *DeployRequest) (*DeployResponse, error) {
	n := c.Get(ContextNetwork).(*Network)
	network := c.Param(ParamNetwork)
	signer, err := n.ResolveSigner(req.Options.Signer)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err)
	}
	doc, err := metadata.NewDocument(req.Metadata)
	if err != nil {
		return nil, err
	}
	h := client.NewHandler(doc, "", n.Client, s.l)
	if n.Pallet != "" {
		h.SetPallet(n.Pallet)
	}
	opts := &client.DeployOptions{
		Signer:   signer,
		GasLimit: req.Options.GasLimit,
	}
	if opts.Value, err = ParseAmount(req.Options.Value); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if opts.Tip, err = ParseAmount(req.Options.Tip); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if opts.StorageDepositLimit, err = ParseAmount(req.Options.StorageDepositLimit); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if opts.Salt, err = ParseSalt(req.Salt); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err)
	}
	ctx := c.Request().Context()
	var (
		ret      *client.DeployResult
		codeHash string
	)
	if req.Code != "" {
		code, err := hexutil.Decode(req.Code)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err)
		}
		codeHash = hexutil.Encode(client.Blake2b256(code))
		ret, err = h.Deploy(ctx, code, req.Constructor, req.Args, opts)
		if err != nil {
			return nil, err
		}
	} else {
		hash, err := hexutil.Decode(req.CodeHash)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err)
		}
		codeHash = req.CodeHash
		ret, err = h.Instantiate(ctx, hash, req.Constructor, req.Args, opts)
		if err != nil {
			return nil, err
		}
	}
	if _, err = s.AddContract(network, n, ret.Address, req.Metadata); err != nil {
		s.l.Warnf("fail to AddContract of deployed %s err:%+v", ret.Address, err)
	}
	s.recordDeployment(ctx, network, n, signer, doc.Name(), codeHash, ret)
	return &DeployResponse{
		Address:   ret.Address,
		CodeHash:  codeHash,
		TxHash:    ret.TxHash,
		BlockHash: ret.BlockHash,
		Events:    ret.Events,
	}, nil
}

func (s *Server) recordDeployment(ctx context.Context, network string, n *Network,
	signer client.Signer, name, codeHash string, ret *client.DeployResult) {
	r := s.getDeployments()
	if r == nil {
		return
	}
	d := &store.Deployment{
		Network:   network,
		Contract:  name,
		Address:   string(ret.Address),
		CodeHash:  codeHash,
		TxHash:    ret.TxHash,
		BlockHash: ret.BlockHash,
	}
	if props, err := n.Client.Properties(ctx); err == nil {
		if from, err := client.SignerAddress(signer, props.Prefix()); err == nil {
			d.Deployer = string(from)
		}
	}
	if err := r.Record(d); err != nil {
		s.l.Warnf("fail to Record deployment of %s err:%+v", ret.Address, err)
	}
}

// MonitorRequest is the websocket handshake payload of the event
// stream, an optional filter on event labels.
type MonitorRequest struct {
	Events []string `json:"events,omitempty"`
}

// EventNotification is one streamed contract event.
type EventNotification struct {
	Height uint64                 `json:"height"`
	Event  *contract.DecodedEvent `json:"event"`
}

func (s *Server) wsID(conn *websocket.Conn) string {
	return conn.RemoteAddr().String()
}

func (s *Server) wsConnect(c echo.Context) (*websocket.Conn, error) {
	conn, err := s.u.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.l.Debugf("fail to Upgrade err:%+v", err)
		return nil, err
	}
	s.l.Debugf("[%s]wsConnect", s.wsID(conn))
	return conn, nil
}

func (s *Server) wsHandshake(conn *websocket.Conn, req interface{}, onSuccess func() error) error {
	var err error
	id := s.wsID(conn)
	ctx, cancel := context.WithTimeout(context.Background(), WsHandshakeTimeout)
	defer func() {
		cancel()
		er := &ErrorResponse{
			Code: errors.Success,
		}
		if err != nil {
			er.Code = errors.UnknownError
			er.Message = err.Error()
			if ec, ok := errors.CoderOf(err); ok {
				er.Code = ec.ErrorCode()
			}
		}
		if err = s.wsWrite(conn, er); err != nil {
			s.l.Debugf("[%s]fail to wsWrite err:%+v", id, err)
		}
	}()
	if err = s.wsRead(ctx, conn, req); err != nil {
		s.l.Debugf("[%s]fail to wsRead err:%+v", id, err)
		return err
	}
	err = onSuccess()
	return err
}

func (s *Server) wsClose(conn *websocket.Conn) {
	s.l.Debugf("[%s]wsClose", s.wsID(conn))
	conn.Close()
}

func (s *Server) wsRead(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	id := s.wsID(conn)
	ch := make(chan interface{}, 1)
	go func() {
		_, b, err := conn.ReadMessage()
		if err != nil {
			ch <- err
		} else {
			ch <- b
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case inf := <-ch:
		switch t := inf.(type) {
		case error:
			return t
		case []byte:
			if err := json.Unmarshal(t, v); err != nil {
				return err
			}
			s.l.Logf(s.lv, "[%s]wsRead=%s", id, t)
			return nil
		default:
			s.l.Panicln("unreachable code")
			return nil
		}
	}
}

func (s *Server) wsWrite(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.l.Logf(s.lv, "[%s]wsWrite=%s", s.wsID(conn), b)
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn, cb func(b []byte) error) error {
	id := s.wsID(conn)
	ech := make(chan error, 1)
	go func() {
		defer func() {
			s.l.Debugf("[%s]wsReadLoop finish", id)
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				ech <- err
				break
			}
			s.l.Logf(s.lv, "[%s]wsReadLoop=%s", id, b)
			if err = cb(b); err != nil {
				ech <- err
				break
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.l.Debugf("[%s]wsReadLoop context Done", id)
		return ctx.Err()
	case err := <-ech:
		s.l.Debugf("[%s]wsReadLoop err:%+v", id, err)
		return err
	}
}

func (s *Server) RegisterMonitorHandler(g *echo.Group) {
	monitorApi := g.Group("/:"+ParamNetwork+"/:"+ParamAddress,
		func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				p := c.Param(ParamNetwork)
				n := s.GetNetwork(p)
				if n == nil {
					return echo.NewHTTPError(http.StatusNotFound,
						fmt.Sprintf("Network(%s) not found", p))
				}
				if n.Monitor == nil {
					return echo.NewHTTPError(http.StatusNotFound,
						fmt.Sprintf("Monitor of Network(%s) not enabled", p))
				}
				c.Set(ContextNetwork, n)
				address := contract.Address(c.Param(ParamAddress))
				con := s.GetContract(p, address)
				if con == nil {
					return echo.NewHTTPError(http.StatusNotFound,
						fmt.Sprintf("Contract(%s) not found", ContractName(p, address)))
				}
				c.Set(ContextContract, con)
				return next(c)
			}
		})
	monitorApi.GET("/event", func(c echo.Context) error {
		conn, err := s.wsConnect(c)
		if err != nil {
			return err
		}
		defer s.wsClose(conn)
		id := s.wsID(conn)
		n := c.Get(ContextNetwork).(*Network)
		con := c.Get(ContextContract).(*Contract)
		req := &MonitorRequest{}
		onSuccessHandshake := func() error {
			if err = c.Validate(req); err != nil {
				s.l.Debugf("[%s]fail to Validate err:%+v", id, err)
				return err
			}
			for _, name := range req.Events {
				if _, ok := con.doc.Event(name); !ok {
					return errors.Errorf("not found event %s in %s", name, con.doc.Name())
				}
			}
			return nil
		}
		if err = s.wsHandshake(conn, req, onSuccessHandshake); err != nil {
			s.l.Debugf("[%s]fail to wsHandshake err:%+v", id, err)
			return nil
		}
		var filter map[string]bool
		if len(req.Events) > 0 {
			filter = make(map[string]bool)
			for _, name := range req.Events {
				filter[name] = true
			}
		}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer cancel()
			_ = s.wsReadLoop(ctx, conn, func(b []byte) error {
				return nil
			})
		}()
		onEvent := func(height uint64, ev *contract.DecodedEvent) error {
			if filter != nil && !filter[ev.Label] {
				return nil
			}
			return s.wsWrite(conn, &EventNotification{Height: height, Event: ev})
		}
		if err = client.WatchContractEvents(ctx, n.Monitor, con.doc, con.address, onEvent); err != nil {
			s.l.Debugf("[%s]fail to WatchContractEvents req:%+v err:%+v", id, req, err)
			return nil
		}
		return nil
	})
}

// BindRequest binds simple query params first and overlays the JSON
// body, GET requests may carry either.
func BindRequest(c echo.Context, v interface{}) error {
	if err := UnmarshalQueryParams(c, v); err != nil {
		return err
	}
	return UnmarshalRequestBody(c, v)
}

// query param keys that bind to list fields
var listQueryParams = map[string]bool{
	"args": true,
}

func QueryParamsToMap(c echo.Context) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for k, v := range c.QueryParams() {
		tm := m
		if start := strings.IndexByte(k, '['); start > 0 && k[len(k)-1] == ']' {
			l := []string{k[:start]}
			l = append(l, strings.Split(k[start+1:len(k)-1], "][")...)
			var (
				elem interface{}
				ok   = false
				last = len(l) - 1
			)
			for i, p := range l {
				if i < last {
					if elem, ok = tm[p]; !ok {
						cm := make(map[string]interface{})
						tm[p] = cm
						tm = cm
					} else if tm, ok = elem.(map[string]interface{}); ok {
						continue
					} else {
						return nil, errors.Errorf("fail cast k:%s i:%d p:%s", k, i, p)
					}
				} else {
					k = p
				}
			}
		}
		switch len(v) {
		case 0:
			tm[k] = nil
		case 1:
			if listQueryParams[k] {
				tm[k] = v
			} else {
				tm[k] = v[0]
			}
		default:
			tm[k] = v
		}
	}
	return m, nil
}

func UnmarshalQueryParams(c echo.Context, v interface{}) error {
	m, err := QueryParamsToMap(c)
	if err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func UnmarshalRequestBody(c echo.Context, v interface{}) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	return UnmarshalBody(c.Request().Body, v)
}

func UnmarshalBody(b io.ReadCloser, v interface{}) error {
	defer b.Close()
	if err := json.NewDecoder(b).Decode(v); err != nil {
		return err
	}
	return nil
}
