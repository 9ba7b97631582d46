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
	"fmt"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/icon-project/btp2/common/log"
	"github.com/labstack/echo/v4"

	"github.com/inkforge/inkforge/store"
)

const (
	openapi3Version    = "3.0.3"
	infoTitle          = "inkforge dev server - OpenAPI " + openapi3Version
	infoDefaultVersion = "0.1.0"
	tagGeneral         = "General"
	tagContract        = "Contract"
	tagReadonly        = "Readonly"
	tagWritable        = "Writable"
	schemaRefPrefix    = "#/components/schemas/"
)

var (
	infoLicenseApache = &openapi3.License{
		Name: "Apache 2.0",
		URL:  "http://www.apache.org/licenses/LICENSE-2.0.html",
	}
	externalDocs = &openapi3.ExternalDocs{
		Description: "Find out more about inkforge",
		URL:         "https://github.com/inkforge/inkforge",
	}
	defaultSchemas = map[string]*openapi3.Schema{
		"ChainInfo":       MustGenerateSchema(&ChainInfo{}),
		"BalanceResponse": MustGenerateSchema(&BalanceResponse{}),
		"ContractInfo":    MustGenerateSchema(&ContractInfo{}),
		"MethodInfo":      MustGenerateSchema(&MethodInfo{}),
		"CallRequest":     MustGenerateSchema(&CallRequest{}),
		"RegisterRequest": MustGenerateSchema(&RegisterRequest{}),
		"DeployRequest":   MustGenerateSchema(&DeployRequest{}),
		"UploadRequest":   MustGenerateSchema(&UploadRequest{}),
		"QueryResponse":   MustGenerateSchema(&QueryResponse{}),
		"InvokeResponse":  MustGenerateSchema(&InvokeResponse{}),
		"DeployResponse":  MustGenerateSchema(&DeployResponse{}),
		"UploadResponse":  MustGenerateSchema(&UploadResponse{}),
		"DeploymentPage":  MustGenerateSchema(&store.Page[store.Deployment]{}),
		"ErrorResponse":   MustGenerateSchema(&ErrorResponse{}),
	}
	defaultTags = openapi3.Tags{
		NewTag(tagGeneral, "Network and account state"),
		NewTag(tagContract, "Contract registration and deployment"),
		NewTag(tagReadonly, "Readonly contract method"),
		NewTag(tagWritable, "Writable contract method"),
	}
)

func MustGenerateSchema(v interface{}) *openapi3.Schema {
	ref, err := openapi3gen.NewSchemaRefForValue(v, nil)
	if err != nil {
		log.Panicf("%+v", err)
	}
	return ref.Value
}

func DefaultSchemaRef(name string) *openapi3.SchemaRef {
	if s, ok := defaultSchemas[name]; ok {
		return openapi3.NewSchemaRef(schemaRefPrefix+name, s)
	}
	return nil
}

func NewSchemas() openapi3.Schemas {
	schemas := make(openapi3.Schemas)
	for k, s := range defaultSchemas {
		schemas[k] = s.NewRef()
	}
	return schemas
}

func NewTag(name, desc string) *openapi3.Tag {
	return &openapi3.Tag{
		Name:        name,
		Description: desc,
	}
}

func NewTags() openapi3.Tags {
	tags := make(openapi3.Tags, len(defaultTags))
	copy(tags, defaultTags)
	return tags
}

func NewParameters(ps ...*openapi3.Parameter) openapi3.Parameters {
	parameters := make(openapi3.Parameters, 0)
	for _, p := range ps {
		parameters = append(parameters, &openapi3.ParameterRef{Value: p})
	}
	return parameters
}

func NewPathParameterWithSchema(name string, s *openapi3.Schema) *openapi3.Parameter {
	return openapi3.NewPathParameter(name).WithRequired(true).WithSchema(s)
}

func NewStringEnumSchema(strs ...string) *openapi3.Schema {
	values := make([]interface{}, len(strs))
	for i := 0; i < len(strs); i++ {
		values[i] = strs[i]
	}
	return openapi3.NewStringSchema().WithEnum(values...)
}

func NewSuccessResponse() *openapi3.Response {
	return openapi3.NewResponse().WithDescription("Successful operation")
}

func NewSuccessResponseWithSchema(s *openapi3.Schema) *openapi3.Response {
	return NewSuccessResponse().WithJSONSchema(s)
}

func NewSuccessResponseWithSchemaRef(sr *openapi3.SchemaRef) *openapi3.Response {
	return NewSuccessResponse().WithJSONSchemaRef(sr)
}

func ResponsesWithResponse(m openapi3.Responses, status int, resp *openapi3.Response) openapi3.Responses {
	if m == nil {
		m = make(openapi3.Responses)
	}
	m[strconv.FormatInt(int64(status), 10)] = &openapi3.ResponseRef{
		Value: resp,
	}
	return m
}

func NewJSONRequestBody(sr *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithContent(
			openapi3.NewContentWithJSONSchemaRef(sr)),
	}
}

// NewOpenAPISpec describes the routes of the server against its
// registered networks.
func NewOpenAPISpec(s *Server) openapi3.T {
	oas := openapi3.T{
		OpenAPI: openapi3Version,
		Info: &openapi3.Info{
			Title:   infoTitle,
			Version: infoDefaultVersion,
			License: infoLicenseApache,
		},
		ExternalDocs: externalDocs,
		Tags:         NewTags(),
		Paths:        make(openapi3.Paths),
		Components: &openapi3.Components{
			Schemas: NewSchemas(),
		},
	}
	networkParam := NewPathParameterWithSchema(ParamNetwork, NewStringEnumSchema(s.NetworkNames()...))
	addressParam := NewPathParameterWithSchema(ParamAddress, openapi3.NewStringSchema())
	methodParam := NewPathParameterWithSchema(ParamMethod, openapi3.NewStringSchema())
	accountParam := NewPathParameterWithSchema(ParamAccount, openapi3.NewStringSchema())

	oas.Paths[GroupUrlApi] = &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:    []string{tagGeneral},
			Summary: "Retrieve networks",
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchema(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))),
		},
	}
	networkUrl := fmt.Sprintf("%s/{%s}", GroupUrlApi, ParamNetwork)
	oas.Paths[networkUrl] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam),
		Get: &openapi3.Operation{
			Tags:    []string{tagGeneral},
			Summary: "Retrieve chain info",
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("ChainInfo"))),
		},
	}
	oas.Paths[fmt.Sprintf("%s/balance/{%s}", networkUrl, ParamAccount)] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam, accountParam),
		Get: &openapi3.Operation{
			Tags:    []string{tagGeneral},
			Summary: "Retrieve free balance of an account",
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("BalanceResponse"))),
		},
	}
	oas.Paths[networkUrl+"/deployments"] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam),
		Get: &openapi3.Operation{
			Tags:    []string{tagContract},
			Summary: "Retrieve deployment history",
			Parameters: NewParameters(
				openapi3.NewQueryParameter("page").WithSchema(openapi3.NewIntegerSchema()),
				openapi3.NewQueryParameter("size").WithSchema(openapi3.NewIntegerSchema()),
				openapi3.NewQueryParameter("sort").WithSchema(openapi3.NewStringSchema())),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("DeploymentPage"))),
		},
	}
	oas.Paths[networkUrl+"/deploy"] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam),
		Post: &openapi3.Operation{
			Tags:        []string{tagContract, tagWritable},
			Summary:     "Deploy a contract",
			RequestBody: NewJSONRequestBody(DefaultSchemaRef("DeployRequest")),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("DeployResponse"))),
		},
	}
	oas.Paths[networkUrl+"/upload"] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam),
		Post: &openapi3.Operation{
			Tags:        []string{tagContract, tagWritable},
			Summary:     "Upload contract code",
			RequestBody: NewJSONRequestBody(DefaultSchemaRef("UploadRequest")),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("UploadResponse"))),
		},
	}
	contractUrl := fmt.Sprintf("%s/{%s}", networkUrl, ParamAddress)
	oas.Paths[contractUrl] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam, addressParam),
		Get: &openapi3.Operation{
			Tags:    []string{tagContract},
			Summary: "Retrieve a registered contract",
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("ContractInfo"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{tagContract},
			Summary:     "Register contract metadata",
			RequestBody: NewJSONRequestBody(DefaultSchemaRef("RegisterRequest")),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("ContractInfo"))),
		},
	}
	oas.Paths[fmt.Sprintf("%s/{%s}", contractUrl, ParamMethod)] = &openapi3.PathItem{
		Parameters: NewParameters(networkParam, addressParam, methodParam),
		Get: &openapi3.Operation{
			Tags:    []string{tagReadonly},
			Summary: "Query a readonly message",
			Parameters: NewParameters(
				openapi3.NewQueryParameter("args").WithSchema(
					openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("QueryResponse"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{tagWritable},
			Summary:     "Invoke a mutating message",
			RequestBody: NewJSONRequestBody(DefaultSchemaRef("CallRequest")),
			Responses: ResponsesWithResponse(nil, http.StatusOK,
				NewSuccessResponseWithSchemaRef(DefaultSchemaRef("InvokeResponse"))),
		},
	}
	return oas
}

// RegisterSpecHandler serves the OpenAPI document, rebuilt per request
// so the network enum follows the registry.
func (s *Server) RegisterSpecHandler(e *echo.Echo) {
	e.GET(UrlSpec, func(c echo.Context) error {
		return c.JSON(http.StatusOK, NewOpenAPISpec(s))
	})
}
