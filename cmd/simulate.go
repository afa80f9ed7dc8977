package cmd

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/infra/logger"
	"github.com/kilianp07/fleetcore/infra/mqtt"
	"github.com/kilianp07/fleetcore/internal/simulator"
)

var (
	simAckLatency time.Duration
	simDropRate   float64
	simSpeed      float64
	simTimeScale  float64
	simInterval   time.Duration
	simSeed       int64
	simDwell      time.Duration
	simManual     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [FLEET]",
	Short: "Run simulated carriers of the site against the broker",
	Args:  cobra.MaximumNArgs(1),
	RunE:  simulate,
}

func init() {
	f := simulateCmd.Flags()
	f.DurationVar(&simAckLatency, "ack-latency", 0, "delay before acknowledging a command")
	f.Float64Var(&simDropRate, "drop-rate", 0, "probability of not acknowledging a command")
	f.Float64Var(&simSpeed, "speed", 1, "driving speed in meters per second")
	f.Float64Var(&simTimeScale, "time-scale", 1, "multiplier applied to simulated durations")
	f.DurationVar(&simInterval, "interval", 5*time.Second, "carrier_status report interval")
	f.DurationVar(&simDwell, "dwell", 2*time.Second, "wait at a station before pressing the dispatch button")
	f.BoolVar(&simManual, "manual-dispatch", false, "leave the dispatch button to operators")
	f.Int64Var(&simSeed, "seed", time.Now().UnixNano(), "random seed for dropped acknowledgements")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is not configured")
	}
	if cfg.SiteFile == "" {
		return fmt.Errorf("site_file is not configured")
	}
	site, err := config.LoadSite(cfg.SiteFile)
	if err != nil {
		return err
	}

	strat := simulator.NewRandomAck(simAckLatency, simDropRate, simSeed)
	log := logger.New("simulator")
	var carriers []*simulator.Carrier
	for _, c := range site.Carriers {
		if len(args) == 1 && c.Fleet != args[0] {
			continue
		}
		sc := simulator.NewCarrier(c.Name, simulator.StartPose(c, site.Stations), log)
		sc.Prefix = cfg.MQTT.TopicPrefix
		sc.Strategy = strat
		sc.Speed = simSpeed
		sc.TimeScale = simTimeScale
		sc.Interval = simInterval
		sc.Dwell = simDwell
		sc.AutoDispatch = !simManual
		carriers = append(carriers, sc)
	}
	if len(carriers) == 0 {
		return fmt.Errorf("no carriers to simulate")
	}

	ctx, stop := interruptContext()
	defer stop()
	log.Infof("simulating %d carriers", len(carriers))
	return simulator.RunFleet(ctx, carriers, func(name string) (simulator.Client, error) {
		mc := cfg.MQTT
		mc.ClientID = "sim-" + name
		mc.LWTTopic = ""
		opts, err := mqtt.NewClientOptions(mc)
		if err != nil {
			return nil, err
		}
		cli := paho.NewClient(opts)
		if token := cli.Connect(); token.Wait() && token.Error() != nil {
			return nil, token.Error()
		}
		return cli, nil
	})
}
