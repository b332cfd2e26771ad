package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensorpipe/internal/alarms"
	"sensorpipe/internal/config"
	"sensorpipe/internal/i2c"
	"sensorpipe/internal/pipeline"
	"sensorpipe/internal/publish"
	"sensorpipe/internal/sensors"
	"sensorpipe/internal/sensors/bmp280"
	"sensorpipe/internal/sensors/icm20948"
	"sensorpipe/internal/sim"
	"sensorpipe/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	store := config.NewStore(cfg)

	logBuf := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("sensorpipe starting")
	log.Printf("source=%s rate=%d Hz", cfg.Sensors.Source, cfg.Sensors.RateHz)

	registry, cleanup, err := buildRegistry(ctx, cfg.Sensors)
	if err != nil {
		log.Fatalf("sensor init failed: %v", err)
	}
	defer cleanup()

	broadcaster := publish.NewBroadcaster()
	sinks := publish.Multi{broadcaster}

	if cfg.Publish.MQTT.Enable {
		mq, err := publish.NewMQTTSink(cfg.Publish.MQTT)
		if err != nil {
			log.Fatalf("mqtt init failed: %v", err)
		}
		defer mq.Close()
		sinks = append(sinks, mq)
		log.Printf("mqtt broker=%s prefix=%s", cfg.Publish.MQTT.Broker, cfg.Publish.MQTT.TopicPrefix)
	}
	if cfg.Publish.UDP.Enable {
		up, err := publish.NewUDPSink(cfg.Publish.UDP.Dest)
		if err != nil {
			log.Fatalf("udp init failed: %v", err)
		}
		defer up.Close()
		sinks = append(sinks, up)
		log.Printf("udp dest=%s", cfg.Publish.UDP.Dest)
	}

	promReg := prometheus.NewRegistry()
	alarmReg := alarms.NewRegistry()

	svc := pipeline.New(store, registry, sinks, pipeline.Options{
		Alarms:  alarmReg,
		Metrics: pipeline.NewMetrics(promReg),
	})
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("pipeline start failed: %v", err)
	}

	if cfg.Web.Enable {
		go func() {
			err := web.Serve(ctx, cfg.Web.Listen, web.Deps{
				Status:    svc,
				Alarms:    alarmReg,
				Broadcast: broadcaster,
				Settings:  web.SettingsStore{ConfigPath: configPath, Store: store},
				Logs:      logBuf,
				Metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
				cancel()
			}
		}()
		log.Printf("web listening on %s", cfg.Web.Listen)
	}

	<-ctx.Done()
	log.Printf("sensorpipe stopping")
}

// buildRegistry assembles the sensor fit for the configured source. The
// returned cleanup closes the bus on the hardware path.
func buildRegistry(ctx context.Context, cfg config.SensorsConfig) (sensors.Registry, func(), error) {
	if cfg.Source == "sim" {
		suite := sim.NewSuite(sim.SuiteConfig{RateHz: cfg.RateHz})
		suite.Start(ctx)
		return suite, func() {}, nil
	}

	busPath := fmt.Sprintf("/dev/i2c-%d", cfg.I2CBus)
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", busPath, err)
	}

	imuAddr := cfg.IMUAddr
	if imuAddr == 0 {
		imuAddr = icm20948.DefaultAddress()
	}
	imu, err := icm20948.New(bus.Dev(imuAddr), icm20948.Options{
		RateHz:       cfg.RateHz,
		InterruptPin: cfg.IMUInterruptPin,
	})
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("imu init: %w", err)
	}
	imu.Start(ctx)

	baroAddr := cfg.BaroAddr
	if baroAddr == 0 {
		baroAddr = bmp280.DefaultAddress()
	}
	baro, err := bmp280.New(bus.Dev(baroAddr))
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("baro init: %w", err)
	}

	reg := sensors.InstanceList{imu, baro}
	return reg, func() { _ = bus.Close() }, nil
}
