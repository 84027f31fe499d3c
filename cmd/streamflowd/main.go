// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"
	"github.com/spirit-labs/streamflow/common"
	"github.com/spirit-labs/streamflow/conf"
	"github.com/spirit-labs/streamflow/engine"
	"github.com/spirit-labs/streamflow/errors"
	log "github.com/spirit-labs/streamflow/logger"
	"github.com/spirit-labs/streamflow/metrics"
	"github.com/spirit-labs/streamflow/operators"
)

type arguments struct {
	Config kong.ConfigFlag `help:"Path to config file" type:"existingfile"`
	Engine conf.Config     `help:"Engine configuration" embed:"" prefix:""`
	Log    log.Config      `help:"Configuration for the logger" embed:"" prefix:"log-"`
	Demo   demoConfig      `help:"Demo flow configuration" embed:"" prefix:"demo-"`
	Shell  bool            `help:"Start an interactive shell to inspect and transform the running flow"`
	VI     bool            `help:"Enable VI mode in the shell."`
}

func logErrorAndExit(msg string) {
	log.Errorf(msg)
	os.Exit(1)
}

func main() {
	defer common.PanicHandler()

	r := &runner{}
	cfg, err := r.loadConfig(os.Args[1:])
	if err != nil {
		logErrorAndExit(err.Error())
	}
	if err := r.run(cfg); err != nil {
		logErrorAndExit(err.Error())
	}
	defer func() {
		// hard stop if the engine hangs on shutdown
		tz := time.AfterFunc(5*time.Second, func() {
			log.Warn("engine shutdown did not complete in time. system will exit.")
			common.DumpStacks()
			os.Exit(1)
		})
		if err := r.stop(); err != nil {
			log.Warnf("failure in stopping streamflow: %v", err)
		}
		tz.Stop()
	}()

	if cfg.Shell {
		if err := runShell(r.engine, cfg.VI); err != nil {
			log.Errorf("shell failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := r.engine.AwaitCompletion(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("signal received. streamflow will be stopped")
			return
		}
		log.Errorf("flow failed: %v", err)
		return
	}
	log.Infof("demo flow completed, %d windows collected", r.collection.Len())
}

type runner struct {
	engine        *engine.Engine
	metricsServer *metrics.Server
	collection    *operators.Collection
}

func (r *runner) loadConfig(args []string) (*arguments, error) {
	cfg := arguments{}
	parser, err := kong.New(&cfg, kong.Configuration(konghcl.Loader))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err = parser.Parse(args); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.Log.Configure(); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Engine.ApplyDefaults()
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Demo.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// run starts the metrics server and an engine running the demo flow.
func (r *runner) run(args *arguments) error {
	m := metrics.NewMetrics()
	r.metricsServer = metrics.NewServer(&args.Engine, m, !args.Engine.MetricsEnabled)
	if err := r.metricsServer.Start(); err != nil {
		return err
	}
	e, err := engine.NewEngine(&args.Engine, m)
	if err != nil {
		return err
	}
	f, collection, err := demoFlow(&args.Demo)
	if err != nil {
		return err
	}
	if err := e.Run(f); err != nil {
		return err
	}
	r.engine = e
	r.collection = collection
	fmt.Printf("streamflow engine %s running demo flow\n", e.ID())
	return nil
}

func (r *runner) stop() error {
	var err error
	if r.engine != nil {
		err = r.engine.Shutdown()
	}
	if serr := r.metricsServer.Stop(); serr != nil && err == nil {
		err = serr
	}
	return err
}
