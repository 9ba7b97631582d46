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
	"os"
	"path/filepath"

	"github.com/icon-project/btp2/common/cli"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inkforge/inkforge/api"
	"github.com/inkforge/inkforge/client"
	"github.com/inkforge/inkforge/config"
	"github.com/inkforge/inkforge/store"
)

func readConfig(filePath string, cfg *config.Config, vc *viper.Viper) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "fail to open config %s, err:%s", filePath, err.Error())
	}
	defer f.Close()
	vc.SetConfigType("json")
	if err = vc.ReadConfig(f); err != nil {
		return errors.Wrapf(err, "fail to read config %s, err:%s", filePath, err.Error())
	}
	if err = vc.Unmarshal(cfg, cli.ViperDecodeOptJson); err != nil {
		return errors.Wrapf(err, "fail to unmarshal config %s, err:%s", filePath, err.Error())
	}
	cfg.FilePath, _ = filepath.Abs(filePath)
	return nil
}

// NewServeCommand registers the dev server command, running it serves
// every configured network over one HTTP API.
func NewServeCommand(parentCmd *cobra.Command, parentVc *viper.Viper, version, build string, logoLines []string) (*cobra.Command, *viper.Viper) {
	cfg := config.Default()
	rootCmd, rootVc := cli.NewCommand(parentCmd, parentVc, "serve", "Serve the contract HTTP API")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfgFilePath := rootVc.GetString("config")
		if cfgFilePath == "" {
			if found, ok := config.Find("."); ok {
				cfgFilePath = found
			}
		}
		if cfgFilePath != "" {
			if err := readConfig(cfgFilePath, cfg, rootVc); err != nil {
				return err
			}
		}
		if err := rootVc.Unmarshal(cfg, cli.ViperDecodeOptJson); err != nil {
			return errors.Wrapf(err, "fail to unmarshal config from env, err:%s", err.Error())
		}
		return nil
	}
	rootPFlags := rootCmd.PersistentFlags()
	rootPFlags.StringP("config", "c", "", "Parsing configuration file")
	rootPFlags.String("log_level", "debug", "Global log level (trace,debug,info,warn,error,fatal,panic)")
	rootPFlags.String("console_level", "trace", "Console log level (trace,debug,info,warn,error,fatal,panic)")
	rootPFlags.String("log_writer.filename", "inkforge.log", "Log file name (rotated files resides in same directory)")
	rootPFlags.Int("log_writer.maxsize", 100, "Maximum log file size in MiB")
	rootPFlags.Int("log_writer.maxage", 0, "Maximum age of log file in day")
	rootPFlags.Int("log_writer.maxbackups", 0, "Maximum number of backups")
	rootPFlags.Bool("log_writer.localtime", false, "Use localtime on rotated log file instead of UTC")
	rootPFlags.Bool("log_writer.compress", false, "Use gzip on rotated log file")
	rootPFlags.String("server.address", config.DefaultServerAddress, "Server address")
	rootPFlags.String("server.dump_log_level", "trace", "Server dump log level (trace,debug,info)")
	cli.BindPFlags(rootVc, rootPFlags)

	saveCmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Save configuration",
		Args:  cli.ArgsWithDefaultErrorFunc(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.ValidateFlagsWithViper(rootVc, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			saveFilePath := args[0]
			cfg.FilePath, _ = filepath.Abs(saveFilePath)
			cfg.BaseDir = cfg.ResolveRelative(cfg.BaseDir)
			if cfg.LogWriter != nil {
				cfg.LogWriter.Filename = cfg.ResolveRelative(cfg.LogWriter.Filename)
			}
			if example, err := cmd.Flags().GetBool("example"); err != nil {
				return err
			} else if example {
				prefix := uint16(42)
				cfg.Networks["example"] = &config.Network{
					RPC:        "wss://rpc.example.network",
					Explorer:   "https://example.subscan.io",
					SS58Prefix: &prefix,
					Signer:     "deployer.key",
				}
			}
			if err := cli.JsonPrettySaveFile(saveFilePath, 0644, cfg); err != nil {
				return err
			}
			cmd.Println("Save configuration to", saveFilePath)
			return nil
		},
	}
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().Bool("example", false, "example")

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		for _, line := range logoLines {
			log.Println(line)
		}
		log.Printf("Version : %s", version)
		log.Printf("Build   : %s", build)

		l := log.GlobalLogger()
		if cfg.LogWriter != nil && cfg.LogWriter.Filename != "" {
			lwCfg := *cfg.LogWriter
			lwCfg.Filename = cfg.ResolveAbsolute(lwCfg.Filename)
			w, err := log.NewWriter(&lwCfg)
			if err != nil {
				log.Panicf("fail to make writer err:%+v", err)
			}
			if err = l.SetFileWriter(w); err != nil {
				log.Panicf("fail to set file writer err:%+v", err)
			}
		}
		if lv, err := log.ParseLevel(cfg.LogLevel); err != nil {
			log.Panicf("invalid log_level %s", cfg.LogLevel)
		} else {
			l.SetLevel(lv)
		}
		if lv, err := log.ParseLevel(cfg.ConsoleLevel); err != nil {
			log.Panicf("invalid console_level %s", cfg.ConsoleLevel)
		} else {
			l.SetConsoleLevel(lv)
		}
		modLevels, _ := cmd.Flags().GetStringToString("mod_level")
		for mod, lvStr := range modLevels {
			if lv, err := log.ParseLevel(lvStr); err != nil {
				log.Panicf("invalid mod_level %s=%s", mod, lvStr)
			} else {
				l.SetModuleLevel(mod, lv)
			}
		}
		dumpLv, err := log.ParseLevel(cfg.Server.DumpLogLevel)
		if err != nil {
			return errors.Wrapf(err, "invalid server.dump_log_level %s, err:%s",
				cfg.Server.DumpLogLevel, err.Error())
		}
		dumpLv = api.EnsureTransportLogLevel(dumpLv)

		s := api.NewServer(cfg.Server.Address, dumpLv, l)
		ctx := context.Background()
		ks := client.NewKeystore(cfg.KeystoreDir())
		for name, nc := range cfg.Networks {
			a, err := client.NewAdaptor(ctx, nc.RPC, l)
			if err != nil {
				l.Warnf("fail to connect %s rpc:%s err:%+v", name, nc.RPC, err)
				continue
			}
			n := &api.Network{
				Client:   a,
				Monitor:  client.NewEventMonitor(a, l),
				Keystore: ks,
				Pallet:   nc.Pallet,
			}
			if nc.Signer != "" {
				if n.Signer, err = ks.Resolve(nc.Signer); err != nil {
					return errors.Wrapf(err, "fail to resolve signer of %s, err:%s", name, err.Error())
				}
			}
			s.AddNetwork(name, n)
			l.Infof("network %s rpc:%s", name, nc.RPC)
		}
		db, err := store.Open(cfg.StoreConfig(), l)
		if err != nil {
			return err
		}
		repo, err := store.NewDeploymentRepository(db)
		if err != nil {
			return err
		}
		s.SetDeployments(repo)
		return s.Start()
	}
	rootFlags := rootCmd.Flags()
	rootFlags.StringToString("mod_level", nil, "Set console log level for specific module ('mod'='level',...)")
	rootFlags.MarkHidden("mod_level")
	return rootCmd, rootVc
}
