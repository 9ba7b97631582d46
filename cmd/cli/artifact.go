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
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/icon-project/btp2/common/cli"
	"github.com/icon-project/btp2/common/errors"
	"github.com/spf13/cobra"

	"github.com/inkforge/inkforge/api"
	"github.com/inkforge/inkforge/client"
	"github.com/inkforge/inkforge/codegen"
	"github.com/inkforge/inkforge/config"
	"github.com/inkforge/inkforge/store"
)

// findArtifact globs the artifacts directory for exactly one file with
// the extension.
func findArtifact(dir, ext string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.Errorf("not found %s artifact in %s", ext, dir)
	}
	if len(matches) > 1 {
		return "", errors.Errorf("ambiguous %s artifacts in %s, pass the file explicitly", ext, dir)
	}
	return matches[0], nil
}

// readWasm loads contract code, a raw wasm file or a .contract bundle
// with the code hex embedded under source.wasm.
func readWasm(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to read code %s, err:%s", path, err.Error())
	}
	if len(b) > 0 && b[0] == '{' {
		var bundle struct {
			Source struct {
				Wasm string `json:"wasm"`
			} `json:"source"`
		}
		if err = json.Unmarshal(b, &bundle); err != nil {
			return nil, errors.Wrapf(err, "invalid contract bundle %s, err:%s", path, err.Error())
		}
		if bundle.Source.Wasm == "" {
			return nil, errors.Errorf("not found source.wasm in %s", path)
		}
		return hexutil.Decode(bundle.Source.Wasm)
	}
	return b, nil
}

// resolveCode locates the code artifact, the flag first, then a single
// .contract bundle or .wasm file in the artifacts directory.
func resolveCode(cfg *config.Config, cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("wasm")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	if path, err = findArtifact(cfg.ArtifactsDir(), ".contract"); err == nil {
		return path, nil
	}
	return findArtifact(cfg.ArtifactsDir(), ".wasm")
}

// resolveMetadata locates the metadata artifact, the flag first, a
// .contract bundle carrying both, then a single .json file.
func resolveMetadata(cfg *config.Config, cmd *cobra.Command, codePath string) (string, error) {
	path, err := cmd.Flags().GetString("metadata")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	if strings.HasSuffix(codePath, ".contract") {
		return codePath, nil
	}
	return findArtifact(cfg.ArtifactsDir(), ".json")
}

func deployOptions(cmd *cobra.Command, s client.Signer) (*client.DeployOptions, error) {
	opts := &client.DeployOptions{Signer: s}
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
	salt, err := cmd.Flags().GetString("salt")
	if err != nil {
		return nil, err
	}
	if opts.Salt, err = api.ParseSalt(salt); err != nil {
		return nil, err
	}
	return opts, nil
}

// recordDeployment writes the deployment to the store so later query
// and call runs find the metadata without a flag.
func recordDeployment(cc *chainContext, d *store.Deployment) {
	repo, err := openDeployments(cc.cfg, cc.l, true)
	if err != nil {
		cc.l.Warnf("fail to open deployment store err:%+v", err)
		return
	}
	if err = repo.Record(d); err != nil {
		cc.l.Warnf("fail to record deployment err:%+v", err)
		return
	}
	printOK("Recorded deployment of %s", d.Contract)
}

// AddArtifactCommands registers the commands working on build
// artifacts, code, metadata and the generated bindings.
func AddArtifactCommands(parentCmd *cobra.Command) {
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload contract code and instantiate it in one step",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			printHeader("Deploying contract...")
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			codePath, err := resolveCode(cc.cfg, cmd)
			if err != nil {
				return err
			}
			metaPath, err := resolveMetadata(cc.cfg, cmd, codePath)
			if err != nil {
				return err
			}
			printLabel("Code", "%s", codePath)
			printLabel("Metadata", "%s", metaPath)
			code, err := readWasm(codePath)
			if err != nil {
				return err
			}
			doc, err := readDocument(metaPath)
			if err != nil {
				return err
			}
			s, err := resolveSigner(cc.cfg, cc.network, cmd)
			if err != nil {
				return err
			}
			opts, err := deployOptions(cmd, s)
			if err != nil {
				return err
			}
			constructor, err := cmd.Flags().GetString("constructor")
			if err != nil {
				return err
			}
			ctorArgs, err := cmd.Flags().GetStringSlice("args")
			if err != nil {
				return err
			}
			res, err := cc.handler(doc, "").Deploy(ctx, code, constructor, ctorArgs, opts)
			if err != nil {
				return err
			}
			printOK("Deployed %s", doc.Name())
			printLabel("Address", "%s", res.Address)
			printLabel("Tx", "%s", res.TxHash)
			printLabel("Block", "%s", res.BlockHash)
			prefix, err := cc.prefix(ctx)
			if err != nil {
				return err
			}
			from, err := client.SignerAddress(s, prefix)
			if err != nil {
				return err
			}
			mp, _ := filepath.Abs(metaPath)
			recordDeployment(cc, &store.Deployment{
				Network:      cc.name,
				Contract:     doc.Name(),
				Address:      string(res.Address),
				CodeHash:     doc.Source.Hash,
				TxHash:       res.TxHash,
				BlockHash:    res.BlockHash,
				Deployer:     string(from),
				MetadataPath: mp,
			})
			return nil
		},
	}
	addChainFlags(deployCmd.Flags())
	deployCmd.Flags().StringP("wasm", "w", "", "Contract code, a .wasm file or a .contract bundle")
	deployCmd.Flags().StringP("metadata", "m", "", "Contract metadata JSON file")
	deployCmd.Flags().String("constructor", "", "Constructor label, empty for the default constructor")
	deployCmd.Flags().StringSlice("args", nil, "Constructor arguments")
	deployCmd.Flags().String("salt", "", "Deploy salt as 0x hex, empty for the zero salt")
	addSubmitFlags(deployCmd.Flags())
	parentCmd.AddCommand(deployCmd)

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Store contract code on chain without instantiating it",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			printHeader("Uploading contract code...")
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			codePath, err := resolveCode(cc.cfg, cmd)
			if err != nil {
				return err
			}
			printLabel("Code", "%s", codePath)
			code, err := readWasm(codePath)
			if err != nil {
				return err
			}
			s, err := resolveSigner(cc.cfg, cc.network, cmd)
			if err != nil {
				return err
			}
			opts := &client.UploadOptions{Signer: s}
			if opts.StorageDepositLimit, err = flagAmount(cmd, "storage_deposit_limit"); err != nil {
				return err
			}
			if opts.Tip, err = flagAmount(cmd, "tip"); err != nil {
				return err
			}
			res, err := cc.handler(nil, "").UploadCode(ctx, code, opts)
			if err != nil {
				return err
			}
			printOK("Uploaded %d bytes", len(code))
			printLabel("Code hash", "%s", res.CodeHash)
			printLabel("Tx", "%s", res.TxHash)
			printLabel("Block", "%s", res.BlockHash)
			return nil
		},
	}
	addChainFlags(uploadCmd.Flags())
	uploadCmd.Flags().StringP("wasm", "w", "", "Contract code, a .wasm file or a .contract bundle")
	uploadCmd.Flags().StringP("signer", "s", "", "Signer, a //dev name, a hex seed or a keystore file name")
	uploadCmd.Flags().String("storage_deposit_limit", "", "Storage deposit limit, base units")
	uploadCmd.Flags().String("tip", "", "Transaction tip, base units")
	parentCmd.AddCommand(uploadCmd)

	instantiateCmd := &cobra.Command{
		Use:   "instantiate CODE_HASH",
		Short: "Instantiate a contract from an uploaded code hash",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			printHeader("Instantiating contract...")
			codeHash, err := hexutil.Decode(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid code hash %s, err:%s", args[0], err.Error())
			}
			ctx, cancel := context.WithCancel(context.Background())
			cli.OnInterrupt(cancel)
			cc, err := dialChain(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer cc.adaptor.Close()
			metaPath, err := cmd.Flags().GetString("metadata")
			if err != nil {
				return err
			}
			if metaPath == "" {
				if metaPath, err = findArtifact(cc.cfg.ArtifactsDir(), ".json"); err != nil {
					return err
				}
			}
			printLabel("Metadata", "%s", metaPath)
			doc, err := readDocument(metaPath)
			if err != nil {
				return err
			}
			s, err := resolveSigner(cc.cfg, cc.network, cmd)
			if err != nil {
				return err
			}
			opts, err := deployOptions(cmd, s)
			if err != nil {
				return err
			}
			constructor, err := cmd.Flags().GetString("constructor")
			if err != nil {
				return err
			}
			ctorArgs, err := cmd.Flags().GetStringSlice("args")
			if err != nil {
				return err
			}
			res, err := cc.handler(doc, "").Instantiate(ctx, codeHash, constructor, ctorArgs, opts)
			if err != nil {
				return err
			}
			printOK("Instantiated %s", doc.Name())
			printLabel("Address", "%s", res.Address)
			printLabel("Tx", "%s", res.TxHash)
			printLabel("Block", "%s", res.BlockHash)
			prefix, err := cc.prefix(ctx)
			if err != nil {
				return err
			}
			from, err := client.SignerAddress(s, prefix)
			if err != nil {
				return err
			}
			mp, _ := filepath.Abs(metaPath)
			recordDeployment(cc, &store.Deployment{
				Network:      cc.name,
				Contract:     doc.Name(),
				Address:      string(res.Address),
				CodeHash:     args[0],
				TxHash:       res.TxHash,
				BlockHash:    res.BlockHash,
				Deployer:     string(from),
				MetadataPath: mp,
			})
			return nil
		},
	}
	addChainFlags(instantiateCmd.Flags())
	instantiateCmd.Flags().StringP("metadata", "m", "", "Contract metadata JSON file")
	instantiateCmd.Flags().String("constructor", "", "Constructor label, empty for the default constructor")
	instantiateCmd.Flags().StringSlice("args", nil, "Constructor arguments")
	instantiateCmd.Flags().String("salt", "", "Deploy salt as 0x hex, empty for the zero salt")
	addSubmitFlags(instantiateCmd.Flags())
	parentCmd.AddCommand(instantiateCmd)

	typegenCmd := &cobra.Command{
		Use:   "typegen",
		Short: "Generate TypeScript bindings from contract metadata",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := chainConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cmd.Flags().GetString("abi")
			if err != nil {
				return err
			}
			if path == "" {
				if path, err = findArtifact(cfg.ArtifactsDir(), ".contract"); err != nil {
					if path, err = findArtifact(cfg.ArtifactsDir(), ".json"); err != nil {
						return errors.Errorf("not found metadata artifact in %s, set --abi", cfg.ArtifactsDir())
					}
				}
			}
			doc, err := readDocument(path)
			if err != nil {
				return err
			}
			out, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.TypesDir()
			}
			outDir := filepath.Join(out, strings.ToLower(doc.Name()))
			if err = os.MkdirAll(outDir, 0755); err != nil {
				return errors.Wrapf(err, "fail to create %s, err:%s", outDir, err.Error())
			}
			files, err := codegen.NewGenerator(doc).Files()
			if err != nil {
				return err
			}
			for _, f := range files {
				p := filepath.Join(outDir, f.Name)
				if err = os.WriteFile(p, []byte(f.Content), 0644); err != nil {
					return errors.Wrapf(err, "fail to write %s, err:%s", p, err.Error())
				}
				printOK("Generated %s", p)
			}
			return nil
		},
	}
	typegenCmd.Flags().StringP("config", "c", "", "Configuration file (default: first of "+strings.Join(config.FileNames, ", ")+")")
	typegenCmd.Flags().StringP("abi", "a", "", "Contract metadata JSON file")
	typegenCmd.Flags().StringP("output", "o", "", "Output directory (default: the configured types path)")
	parentCmd.AddCommand(typegenCmd)

	deploymentsCmd := &cobra.Command{
		Use:   "deployments",
		Short: "List recorded deployments",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := chainConfig(cmd)
			if err != nil {
				return err
			}
			l, err := chainLogger(cmd)
			if err != nil {
				return err
			}
			repo, err := openDeployments(cfg, l, false)
			if err != nil {
				return err
			}
			if repo == nil {
				return errors.Errorf("not found deployment store %s, deploy first", cfg.StoreConfig().DBName)
			}
			network, err := cmd.Flags().GetString("network")
			if err != nil {
				return err
			}
			page, err := cmd.Flags().GetUint("page")
			if err != nil {
				return err
			}
			size, err := cmd.Flags().GetUint("size")
			if err != nil {
				return err
			}
			sort, err := cmd.Flags().GetString("sort")
			if err != nil {
				return err
			}
			p, err := repo.PageByNetwork(store.Pageable{Page: page, Size: size, Sort: sort}, network)
			if err != nil {
				return err
			}
			return cli.JsonPrettyPrintln(os.Stdout, p)
		},
	}
	addChainFlags(deploymentsCmd.Flags())
	deploymentsCmd.Flags().Uint("page", 0, "Page number, zero based")
	deploymentsCmd.Flags().Uint("size", 20, "Page size")
	deploymentsCmd.Flags().String("sort", "", "Sort expression, for example id desc")
	parentCmd.AddCommand(deploymentsCmd)
}
