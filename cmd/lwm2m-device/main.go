// lwm2m-device is an LWM2M temperature sensor client.
//
// It bootstraps from an LWM2M bootstrap server (configured, or found over
// mDNS), registers with the provisioned server and answers its reads,
// writes and executes until interrupted.
//
// Usage:
//
//	lwm2m-device [options]
//
// Options:
//
//	-config      YAML configuration file
//	-endpoint    Endpoint client name (default: urn:uuid:<random>)
//	-bs-host     Bootstrap server host
//	-bs-port     Bootstrap server port (default: 5684)
//	-discover    Find the bootstrap server over mDNS
//	-server      Registration server URI, skips bootstrap
//	-identity    PSK identity
//	-psk         PSK in hex
//	-passphrase  Derive the PSK from a passphrase
//	-log         Log level (default: info)
//
// Every option can also be set through LWM2M_* environment variables or
// a .env file.
//
// Example:
//
//	lwm2m-device -bs-host bs.example.com -identity dev1 -psk 000102030405060708090a0b0c0d0e0f
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/backkem/lwm2m/examples/common"
	"github.com/backkem/lwm2m/examples/sensor"
)

func main() {
	opts := common.ParseFlags()

	loggerFactory, err := common.NewLoggerFactory(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := loggerFactory.NewLogger("main")

	ctx := context.Background()
	device, err := sensor.NewDevice(ctx, opts, common.Deps{LoggerFactory: loggerFactory})
	if err != nil {
		log.Errorf("create sensor device: %v", err)
		os.Exit(1)
	}

	if err := common.RunClient(ctx, device.Client, log, device.Sample); err != nil {
		log.Errorf("device terminated with error: %v", err)
		os.Exit(1)
	}
	log.Info("device stopped")
}
