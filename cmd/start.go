package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tokengate/tokengate/internal/chain"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/db"
	"github.com/tokengate/tokengate/internal/gateway"
	"github.com/tokengate/tokengate/internal/notify"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/pricing"
	"github.com/tokengate/tokengate/internal/rates"
	"github.com/tokengate/tokengate/internal/relay"
	"github.com/tokengate/tokengate/internal/server"
	"github.com/tokengate/tokengate/internal/settle"
	"github.com/tokengate/tokengate/internal/task"
	"github.com/tokengate/tokengate/internal/upstream"
	"github.com/tokengate/tokengate/internal/utils/log"
	"github.com/tokengate/tokengate/internal/utils/shutdown"
)

var cfgFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start " + conf.APP_NAME,
	PreRun: func(cmd *cobra.Command, args []string) {
		conf.PrintBanner()
		if err := conf.Load(cfgFile); err != nil {
			log.Errorf("config load error: %v", err)
			os.Exit(1)
		}
		log.SetLevel(conf.AppConfig.Log.Level)
	},
	Run: func(cmd *cobra.Command, args []string) {
		shutdown.Init(log.Logger)
		defer shutdown.Listen()
		shutdown.Register(log.Sync)
		if err := db.InitDB(conf.AppConfig.Database.Type, conf.AppConfig.Database.Path, conf.IsDebug()); err != nil {
			log.Errorf("database init error: %v", err)
			return
		}
		shutdown.Register(db.Close)

		if err := op.InitCache(); err != nil {
			log.Errorf("cache init error: %v", err)
			return
		}
		shutdown.Register(op.SaveCache)

		if err := op.UserInit(); err != nil {
			log.Errorf("user init error: %v", err)
			return
		}

		provider := upstream.New(conf.AppConfig.Upstream.BaseURL, conf.AppConfig.Upstream.APIKey)
		rateService := rates.New(conf.AppConfig.Rates, conf.AppConfig.Payment.Currencies)
		calculator := pricing.New(provider, rateService, conf.AppConfig.Payment.Currencies)
		notifier := notify.Build(conf.AppConfig.Notify)
		settler := settle.New(provider, notifier)
		payGateway := gateway.New(conf.AppConfig.Payment)
		relaySvc := relay.New(provider)

		monitors := make([]*gateway.Monitor, 0, len(conf.AppConfig.Payment.Currencies))
		for _, currency := range conf.AppConfig.Payment.Currencies {
			indexer, err := chain.NewIndexer(currency)
			if err != nil {
				log.Errorf("indexer init for %s error: %v", currency.Code, err)
				return
			}
			monitors = append(monitors, gateway.NewMonitor(currency, indexer, settler, notifier))
		}

		if err := server.Start(calculator, payGateway, settler, relaySvc); err != nil {
			log.Errorf("server start error: %v", err)
			return
		}
		shutdown.Register(server.Close)

		task.Init(monitors, rateService)
		task.Run()
		shutdown.Register(func() error {
			task.StopAll()
			return nil
		})
	},
}

func init() {
	startCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./data/config.json)")
	rootCmd.AddCommand(startCmd)
}
