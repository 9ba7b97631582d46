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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/icon-project/btp2/common/cli"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inkforge/inkforge/api"
	"github.com/inkforge/inkforge/client"
	"github.com/inkforge/inkforge/config"
	"github.com/inkforge/inkforge/contract"
	"github.com/inkforge/inkforge/metadata"
	"github.com/inkforge/inkforge/store"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func printHeader(format string, args ...interface{}) {
	fmt.Println(bold(cyan(fmt.Sprintf(format, args...))))
}

func printLabel(label, format string, args ...interface{}) {
	fmt.Printf("  %s %s\n", cyan(label+":"), fmt.Sprintf(format, args...))
}

func printOK(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

func addChainFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file (default: first of "+strings.Join(config.FileNames, ", ")+")")
	fs.StringP("network", "n", "", "Network name from configuration (default: default_network)")
	fs.String("log_level", "debug", "Global log level (trace,debug,info,warn,error,fatal,panic)")
	fs.String("console_level", "warn", "Console log level (trace,debug,info,warn,error,fatal,panic)")
}

func chainConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		if found, ok := config.Find("."); ok {
			path = found
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func chainLogger(cmd *cobra.Command) (log.Logger, error) {
	l := log.GlobalLogger()
	s, err := cmd.Flags().GetString("log_level")
	if err != nil {
		return nil, err
	}
	if lv, err := log.ParseLevel(s); err != nil {
		return nil, errors.Wrapf(err, "invalid log_level %s, err:%s", s, err.Error())
	} else {
		l.SetLevel(lv)
	}
	if s, err = cmd.Flags().GetString("console_level"); err != nil {
		return nil, err
	}
	if lv, err := log.ParseLevel(s); err != nil {
		return nil, errors.Wrapf(err, "invalid console_level %s, err:%s", s, err.Error())
	} else {
		l.SetConsoleLevel(lv)
	}
	return l, nil
}

type chainContext struct {
	cfg     *config.Config
	name    string
	network *config.Network
	adaptor *client.Adaptor
	l       log.Logger
}

// dialChain resolves the target network and connects, quiet suppresses
// the progress line so machine readable output stays clean.
func dialChain(ctx context.Context, cmd *cobra.Command, quiet bool) (*chainContext, error) {
	cfg, err := chainConfig(cmd)
	if err != nil {
		return nil, err
	}
	l, err := chainLogger(cmd)
	if err != nil {
		return nil, err
	}
	name, err := cmd.Flags().GetString("network")
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = cfg.DefaultNetwork
	}
	n, err := cfg.Network(name)
	if err != nil {
		return nil, err
	}
	a, err := client.NewAdaptor(ctx, n.RPC, l)
	if err != nil {
		return nil, err
	}
	if !quiet {
		printOK("Connected to %s", n.RPC)
	}
	return &chainContext{cfg: cfg, name: name, network: n, adaptor: a, l: l}, nil
}

func (cc *chainContext) prefix(ctx context.Context) (uint16, error) {
	if cc.network.SS58Prefix != nil {
		return *cc.network.SS58Prefix, nil
	}
	props, err := cc.adaptor.Properties(ctx)
	if err != nil {
		return 0, err
	}
	return props.Prefix(), nil
}

func (cc *chainContext) handler(doc *metadata.Document, address contract.Address) *client.Handler {
	h := client.NewHandler(doc, address, cc.adaptor, cc.l)
	h.SetPallet(cc.network.Pallet)
	return h
}

func readDocument(path string) (*metadata.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to read metadata %s, err:%s", path, err.Error())
	}
	return metadata.NewDocument(b)
}

// loadDocument reads the metadata given by flag, falling back to the
// path recorded in the deployment store for the address.
func loadDocument(cc *chainContext, address contract.Address, cmd *cobra.Command) (*metadata.Document, string, error) {
	path, err := cmd.Flags().GetString("metadata")
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		path = metadataFromStore(cc.cfg, cc.name, address, cc.l)
	}
	if path == "" {
		return nil, "", errors.Errorf("required metadata of %s, set --metadata", address)
	}
	doc, err := readDocument(path)
	if err != nil {
		return nil, "", err
	}
	return doc, path, nil
}

func metadataFromStore(cfg *config.Config, network string, address contract.Address, l log.Logger) string {
	repo, err := openDeployments(cfg, l, false)
	if err != nil || repo == nil {
		return ""
	}
	d, err := repo.FindOneByNetworkAndAddress(network, string(address))
	if err != nil || d == nil {
		return ""
	}
	return d.MetadataPath
}

// openDeployments opens the deployment store, create false leaves a
// sqlite store alone while its file does not exist yet.
func openDeployments(cfg *config.Config, l log.Logger, create bool) (*store.DeploymentRepository, error) {
	sc := cfg.StoreConfig()
	if !create && sc.Driver == store.DriverSQLite && sc.DBName != ":memory:" {
		if _, err := os.Stat(sc.DBName); err != nil {
			return nil, nil
		}
	}
	db, err := store.Open(sc, l)
	if err != nil {
		return nil, err
	}
	return store.NewDeploymentRepository(db)
}

func resolveSigner(cfg *config.Config, n *config.Network, cmd *cobra.Command) (client.Signer, error) {
	spec, err := cmd.Flags().GetString("signer")
	if err != nil {
		return nil, err
	}
	if spec == "" {
		spec = n.Signer
	}
	if spec == "" {
		return nil, errors.New("required signer, set --signer or the network signer in configuration")
	}
	return client.NewKeystore(cfg.KeystoreDir()).Resolve(spec)
}

func flagAmount(cmd *cobra.Command, name string) (*big.Int, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	if s == "" || s == "0" {
		return nil, nil
	}
	v, err := api.ParseAmount(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s, err:%s", name, err.Error())
	}
	return v, nil
}

func flagWeight(cmd *cobra.Command) (*contract.Weight, error) {
	ref, err := cmd.Flags().GetUint64("gas_limit")
	if err != nil {
		return nil, err
	}
	proof, err := cmd.Flags().GetUint64("proof_size")
	if err != nil {
		return nil, err
	}
	if ref == 0 && proof == 0 {
		return nil, nil
	}
	w := contract.Weight{RefTime: ref, ProofSize: proof}
	return &w, nil
}

func addSubmitFlags(fs *pflag.FlagSet) {
	fs.StringP("signer", "s", "", "Signer, a //dev name, a hex seed or a keystore file name")
	fs.String("value", "0", "Balance to transfer with the call, base units")
	fs.Uint64("gas_limit", 0, "Gas limit refTime, 0 for the default")
	fs.Uint64("proof_size", 0, "Gas limit proofSize, 0 for the default")
	fs.String("storage_deposit_limit", "", "Storage deposit limit, base units")
	fs.String("tip", "", "Transaction tip, base units")
}

func invokeOptions(cmd *cobra.Command, s client.Signer) (*client.InvokeOptions, error) {
	opts := &client.InvokeOptions{Signer: s}
	var err error
	if opts.Value, err = flagAmount(cmd, "value"); err != nil {
		return nil, err
	}
	if opts.StorageDepositLimit, err = flagAmount(cmd, "storage_deposit_limit"); err != nil {
		return nil, err
	}
	if opts.Tip, err = flagAmount(cmd, "tip"); err != nil {
		return nil, err
	}
	if opts.GasLimit, err = flagWeight(cmd); err != nil {
		return nil, err
	}
	return opts, nil
}

func formatBalance(v *big.Int, decimals uint8) string {
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(v, den).FloatString(4)
}

func printEvent(height uint64, ev *contract.DecodedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", cyan(fmt.Sprintf("#%d", height)), string(b))
	return nil
}

// AddChainCommands registers the commands that talk to a running node.
func AddChainCommands(parentCmd *cobra.Command) {
	queryCmd := &cobra.Command{
		Use:   "query ADDRESS METHOD [ARGS...]",
		Short: "Dry run a contract message and print its return value",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJson, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if !asJson {
				printHeader("Querying contract...")
				printLabel("Contract", "%s", args[0])
				printLabel("Method", "%s", args[1])
			}
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, asJson)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			address := contract.Address(args[0])
			doc, path, err := loadDocument(cc, address, cmd)
			if err != nil {
				return err
			}
			if !asJson {
				printLabel("Metadata", "%s", path)
			}
			opts := &client.QueryOptions{}
			if opts.Value, err = flagAmount(cmd, "value"); err != nil {
				return err
			}
			if at, err := cmd.Flags().GetString("at"); err != nil {
				return err
			} else if at != "" {
				if opts.At, err = hexutil.Decode(at); err != nil {
					return errors.Wrapf(err, "invalid at %s, err:%s", at, err.Error())
				}
			}
			res, err := cc.handler(doc, address).Query(ctx, args[1], args[2:], opts)
			if err != nil {
				return err
			}
			if asJson {
				return cli.JsonPrettyPrintln(os.Stdout, &api.QueryResponse{
					Output:      res.Output,
					Reverted:    res.Reverted,
					Debug:       res.Debug,
					GasConsumed: res.GasConsumed,
					GasRequired: res.GasRequired,
				})
			}
			if res.Reverted {
				fmt.Printf("%s %s\n", yellow("!"), "Reverted")
			} else {
				printOK("Query successful")
			}
			out, err := json.Marshal(res.Output)
			if err != nil {
				return err
			}
			fmt.Println(bold("Result:"))
			fmt.Printf("  %s\n", green(string(out)))
			if res.Debug != "" {
				printLabel("Debug", "%s", res.Debug)
			}
			printLabel("Gas", "consumed %d/%d required %d/%d",
				res.GasConsumed.RefTime, res.GasConsumed.ProofSize,
				res.GasRequired.RefTime, res.GasRequired.ProofSize)
			return nil
		},
	}
	addChainFlags(queryCmd.Flags())
	queryCmd.Flags().StringP("metadata", "m", "", "Contract metadata JSON file")
	queryCmd.Flags().String("value", "0", "Balance to transfer with the dry run, base units")
	queryCmd.Flags().String("at", "", "Block hash to pin the dry run to")
	queryCmd.Flags().Bool("json", false, "Print the raw JSON result")
	parentCmd.AddCommand(queryCmd)

	callCmd := &cobra.Command{
		Use:   "call ADDRESS METHOD [ARGS...]",
		Short: "Submit a mutating contract message and wait for finality",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			printHeader("Calling contract...")
			printLabel("Contract", "%s", args[0])
			printLabel("Method", "%s", args[1])
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			address := contract.Address(args[0])
			doc, _, err := loadDocument(cc, address, cmd)
			if err != nil {
				return err
			}
			s, err := resolveSigner(cc.cfg, cc.network, cmd)
			if err != nil {
				return err
			}
			prefix, err := cc.prefix(ctx)
			if err != nil {
				return err
			}
			from, err := client.SignerAddress(s, prefix)
			if err != nil {
				return err
			}
			printOK("Using account %s", from)
			opts, err := invokeOptions(cmd, s)
			if err != nil {
				return err
			}
			res, err := cc.handler(doc, address).Invoke(ctx, args[1], args[2:], opts)
			if err != nil {
				return err
			}
			printOK("Transaction finalized")
			printLabel("Tx", "%s", res.TxHash)
			printLabel("Block", "%s", res.BlockHash)
			for i := range res.Events {
				b, err := json.Marshal(&res.Events[i])
				if err != nil {
					return err
				}
				printLabel("Event", "%s", string(b))
			}
			return nil
		},
	}
	addChainFlags(callCmd.Flags())
	callCmd.Flags().StringP("metadata", "m", "", "Contract metadata JSON file")
	addSubmitFlags(callCmd.Flags())
	parentCmd.AddCommand(callCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance [ACCOUNT]",
		Short: "Print the free balance of an account",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			spec := ""
			if len(args) > 0 {
				spec = args[0]
			}
			pub, err := accountPub(cc.cfg, cc.network, spec)
			if err != nil {
				return err
			}
			props, err := cc.adaptor.Properties(ctx)
			if err != nil {
				return err
			}
			prefix := props.Prefix()
			if cc.network.SS58Prefix != nil {
				prefix = *cc.network.SS58Prefix
			}
			addr, err := contract.AddressOf(pub, prefix)
			if err != nil {
				return err
			}
			free, err := cc.adaptor.Balance(ctx, pub)
			if err != nil {
				return err
			}
			printLabel("Account", "%s", addr)
			printLabel("Free", "%s %s", formatBalance(free, props.Decimals()), props.Symbol())
			printLabel("Plank", "%s", free.String())
			return nil
		},
	}
	addChainFlags(balanceCmd.Flags())
	parentCmd.AddCommand(balanceCmd)

	watchCmd := &cobra.Command{
		Use:   "watch ADDRESS [EVENT...]",
		Short: "Print the events a contract emitted, live or from recent blocks",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, err := cmd.Flags().GetBool("follow")
			if err != nil {
				return err
			}
			fromBlock, err := cmd.Flags().GetUint64("from_block")
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetUint64("limit")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			address := contract.Address(args[0])
			doc, _, err := loadDocument(cc, address, cmd)
			if err != nil {
				return err
			}
			filter := make(map[string]bool)
			for _, name := range args[1:] {
				if _, ok := doc.Event(name); !ok {
					return errors.Errorf("not found event %s in %s", name, doc.Name())
				}
				filter[name] = true
			}
			onEvent := func(height uint64, ev *contract.DecodedEvent) error {
				if len(filter) > 0 && !filter[ev.Label] {
					return nil
				}
				return printEvent(height, ev)
			}
			if follow {
				printHeader("Watching %s, interrupt to stop...", address)
				m := client.NewEventMonitor(cc.adaptor, cc.l)
				if err = client.WatchContractEvents(ctx, m, doc, address, onEvent); err == context.Canceled {
					return nil
				}
				return err
			}
			head, err := cc.adaptor.FinalizedHead(ctx)
			if err != nil {
				return err
			}
			hdr, err := cc.adaptor.Header(ctx, head)
			if err != nil {
				return err
			}
			to := uint64(hdr.Number)
			from := fromBlock
			if from == 0 && limit > 0 && to >= limit {
				from = to - limit + 1
			}
			printHeader("Events of %s, blocks %d..%d", address, from, to)
			return client.ScanContractEvents(ctx, cc.adaptor, doc, address, from, to, onEvent)
		},
	}
	addChainFlags(watchCmd.Flags())
	watchCmd.Flags().StringP("metadata", "m", "", "Contract metadata JSON file")
	watchCmd.Flags().BoolP("follow", "f", false, "Keep following finalized blocks")
	watchCmd.Flags().Uint64("from_block", 0, "Scan from this block number")
	watchCmd.Flags().Uint64("limit", 10, "Number of recent blocks to scan")
	parentCmd.AddCommand(watchCmd)
}

// accountPub turns an account given as SS58, hex public key, //dev name
// or keystore file into its raw public key. The network signer applies
// when nothing is given.
func accountPub(cfg *config.Config, n *config.Network, spec string) ([]byte, error) {
	if spec == "" {
		spec = n.Signer
	}
	if spec == "" {
		return nil, errors.New("required account, pass an address or set the network signer")
	}
	if strings.HasPrefix(spec, "0x") || strings.HasPrefix(spec, "0X") {
		pub, err := hexutil.Decode(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid account %s, err:%s", spec, err.Error())
		}
		if len(pub) != 32 {
			return nil, errors.Errorf("invalid account length %d, want 32", len(pub))
		}
		return pub, nil
	}
	if pub, err := contract.Address(spec).Bytes(); err == nil {
		return pub, nil
	}
	s, err := client.NewKeystore(cfg.KeystoreDir()).Resolve(spec)
	if err != nil {
		return nil, err
	}
	return s.PublicKey(), nil
}
