/*
Copyright 2025 The KServe Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/orchestrator"
)

var setupLog = ctrl.Log.WithName("setup")

// Options holds the command line flags. Every flag but the config file overrides a configuration field.
type Options struct {
	configFile     string
	modelURI       string
	examplesURI    string
	blessingDir    string
	outputModelDir string
	workDir        string
	sinkURL        string
	zapOpts        zap.Options
}

func (o *Options) loadConfig() (*v1alpha1.Config, error) {
	if o.configFile == "" {
		return nil, errors.New("--config is required")
	}
	config, err := v1alpha1.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.modelURI != "" {
		config.Model.URI = o.modelURI
	}
	if o.examplesURI != "" {
		if config.Examples == nil {
			config.Examples = &v1alpha1.ExampleSource{}
		}
		config.Examples.URI = o.examplesURI
	}
	if o.blessingDir != "" {
		config.Output.BlessingDir = o.blessingDir
	}
	if o.outputModelDir != "" {
		config.Output.ModelDir = o.outputModelDir
	}
	if o.sinkURL != "" {
		config.Output.SinkURL = o.sinkURL
	}
	return config, nil
}

func newRootCommand(opts *Options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infravalidator",
		Short: "infravalidator checks that a model can be loaded and served by a model server",
		Long: `infravalidator launches a sandboxed model server bound to a candidate model, waits for
the model to load, optionally sends it requests built from sample examples, and writes
a blessing that gates the promotion of the model.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts.zapOpts)))
		},
	}
	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.zapOpts.BindFlags(zapFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(zapFlags)
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path of the YAML or JSON validation config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the validation and write the blessing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	runCmd.Flags().StringVar(&opts.modelURI, "model-uri", "", "Storage URI of the SavedModel, overrides model.uri")
	runCmd.Flags().StringVar(&opts.examplesURI, "examples-uri", "", "Storage URI of the examples, overrides examples.uri")
	runCmd.Flags().StringVar(&opts.blessingDir, "blessing-dir", "", "Directory the blessing is written to, overrides output.blessingDir")
	runCmd.Flags().StringVar(&opts.outputModelDir, "output-model-dir", "", "Directory the model with warmup requests is written to, overrides output.modelDir")
	runCmd.Flags().StringVar(&opts.workDir, "work-dir", "", "Scratch directory, overrides INFRAVAL_WORK_DIR")
	runCmd.Flags().StringVar(&opts.sinkURL, "sink-url", "", "CloudEvents sink the verdict is posted to, overrides output.sinkUrl")

	validateCmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check a validation config without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, opts)
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd)
	return rootCmd
}

func run(cmd *cobra.Command, opts *Options) error {
	config, err := opts.loadConfig()
	if err != nil {
		return err
	}
	settings, err := orchestrator.LoadSettings()
	if err != nil {
		return err
	}
	if opts.workDir != "" {
		settings.WorkDir = opts.workDir
	}

	o := &orchestrator.Orchestrator{Config: config, Settings: settings}
	res, err := o.Run(cmd.Context())
	if err != nil {
		return err
	}
	setupLog.Info("Infra validation done", "verdict", res.Verdict, "blessingDir", config.Output.BlessingDir)
	return nil
}

func validateConfig(cmd *cobra.Command, opts *Options) error {
	config, err := opts.loadConfig()
	if err != nil {
		return err
	}
	binary, err := (&orchestrator.Orchestrator{Config: config}).Prepare()
	if err != nil {
		return err
	}
	mode := "LOAD_ONLY"
	if config.RequestSpec != nil {
		mode = "LOAD_AND_QUERY"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config is valid: mode %s on %s\n", mode, config.ServingSpec.Runtime())
	for _, version := range binary.Fanout() {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", version.String())
	}
	return nil
}

func main() {
	opts := &Options{}
	rootCmd := newRootCommand(opts)
	if err := rootCmd.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "infravalidator failed")
		os.Exit(1)
	}
}
