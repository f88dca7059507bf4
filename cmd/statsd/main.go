// statsd merges the teacher's two exporter example mains
// (cmd/exporter_example1's single hallucinated connection and
// cmd/exporter_example2's ConnState-driven Add/Remove over a real HTTP
// server) into one daemon: attach one or more controllers, register
// each with a statsexport.Collector under its AttachID, and serve
// Prometheus metrics over HTTP while polling each controller's
// interrupt path in the background. Core.Attach/Core.Detach stand in
// for exporter_example2's http.Server ConnState New/Closed hooks.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/netcore/netcore"
	"github.com/netcore/netcore/coherency"
	"github.com/netcore/netcore/register"
	"github.com/netcore/netcore/stats"
	"github.com/netcore/netcore/statsexport"
)

const (
	simVendorID = 0x10B7
	simDeviceID = 0x9055
)

func seededEEPROM(mac [6]byte, vendorID, deviceID uint16) [register.EepromSize]uint16 {
	var words [register.EepromSize]uint16
	words[0] = uint16(mac[0]) | uint16(mac[1])<<8
	words[1] = uint16(mac[2]) | uint16(mac[3])<<8
	words[2] = uint16(mac[4]) | uint16(mac[5])<<8
	words[3] = deviceID
	words[7] = vendorID
	var sum uint32
	for i := 0; i < 15; i++ {
		sum += uint32(words[i])
	}
	words[15] = uint16(-sum)
	return words
}

func main() {
	listen := flag.String("listen", ":18080", "address to serve /metrics on")
	numAttach := flag.Int("attach", 1, "number of simulated controllers to attach")
	pollInterval := flag.Duration("poll", 250*time.Millisecond, "interrupt poll interval per attached controller")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintf(os.Stderr, "statsd: hostname: %v\n", err)
		os.Exit(1)
	}

	log := logrus.StandardLogger()
	core := netcore.NewCore(log)

	collector := statsexport.NewCollector("netcore", []string{"id"}, prometheus.Labels{
		"app":      "statsd",
		"hostname": hostname,
	}, func(err error) {
		log.WithError(err).Warn("metrics export error")
	})
	prometheus.MustRegister(collector)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var ids []netcore.AttachID
	for i := 0; i < *numAttach; i++ {
		mac := [6]byte{0x00, 0x10, 0xA4, 0xDE, 0xAD, byte(i)}
		bus := register.NewFakeBus()
		bus.SetEeprom(seededEEPROM(mac, simVendorID, simDeviceID))

		id, err := core.Attach(ctx, netcore.AttachParams{
			Bus:      bus,
			VendorID: simVendorID,
			DeviceID: simDeviceID,
			Config:   netcore.DefaultConfig(),
			Probe:    coherency.UnixProbe{},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "statsd: attach %d: %v\n", i, err)
			os.Exit(1)
		}

		ctl, _ := core.Get(id)
		if err := ctl.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "statsd: start %d: %v\n", i, err)
			os.Exit(1)
		}

		collector.Add(string(id), ctl.Counters(), []string{string(id)})
		ids = append(ids, id)
		log.WithField("id", string(id)).WithField("mac", fmt.Sprintf("%x", mac)).Info("attached")

		wg.Add(1)
		go pollInterrupts(ctx, &wg, log, ctl, *pollInterval, &stats.Monitor{})
	}

	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *listen}
	go func() {
		log.WithField("addr", *listen).Info("serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	for _, id := range ids {
		collector.Remove(string(id))
		if err := core.Detach(context.Background(), id); err != nil {
			log.WithError(err).WithField("id", string(id)).Warn("detach failed")
		}
	}
}

// pollInterrupts stands in for a real controller's IRQ line: in
// production this wakes on the actual interrupt signal; here it's a
// fixed-interval poll against the simulated bus, matching
// exporter_example1's own background-goroutine traffic generator shape.
// Every tick also feeds mon, turning the raw cumulative counters
// statsexport scrapes into the packets/errors-per-second rate §5.8
// describes - logged rather than exported, since the Prometheus side
// already gets the cumulative counters straight from ctl.Counters().
func pollInterrupts(ctx context.Context, wg *sync.WaitGroup, log logrus.FieldLogger, ctl *netcore.Controller, interval time.Duration, mon *stats.Monitor) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ctl.HandleInterrupt(ctx); err != nil {
				log.WithError(err).WithField("id", string(ctl.ID())).Warn("interrupt handling failed")
			}
			rate := mon.Tick(time.Now(), ctl.Stats())
			log.WithField("id", string(ctl.ID())).
				WithField("pps", rate.PacketsPerSec).
				WithField("eps", rate.ErrorsPerSec).
				Debug("rate snapshot")
		}
	}
}
