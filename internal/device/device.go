// Package device collects the metadata a screen registers with.
package device

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

// DefaultDeviceType is reported when nothing more specific is configured.
const DefaultDeviceType = "TV"

var modelFiles = []string{
	"/sys/firmware/devicetree/base/model",
	"/sys/class/dmi/id/product_name",
}

type Collector struct {
	// StoragePath is the filesystem whose capacity is reported.
	StoragePath string
	DeviceType  string
	OSRelease   string
	logger      zerolog.Logger
}

func NewCollector(storagePath string, logger zerolog.Logger) *Collector {
	return &Collector{
		StoragePath: storagePath,
		DeviceType:  DefaultDeviceType,
		OSRelease:   "/etc/os-release",
		logger:      logger.With().Str("component", "device").Logger(),
	}
}

// Collect never fails; fields it cannot determine stay empty. Location is not collected.
func (c *Collector) Collect(_ context.Context) model.DeviceInfo {
	info := model.DeviceInfo{
		IPAddress:  PrimaryIP(),
		DeviceType: c.DeviceType,
		OSName:     runtime.GOOS,
		Model:      readModel(),
	}

	if rel, err := parseOSRelease(c.OSRelease); err == nil {
		if name := rel["NAME"]; name != "" {
			info.OSName = name
		}
		info.OSVersion = rel["VERSION_ID"]
	}
	if info.Model == "" {
		info.Model, _ = os.Hostname()
	}

	total, free, err := diskUsage(c.StoragePath)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", c.StoragePath).Msg("failed to read disk usage")
	}
	info.TotalStorage, info.FreeStorage = total, free
	return info
}

// PrimaryIP is the first non-loopback IPv4 address of an interface that is up.
func PrimaryIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip := ipnet.IP.To4(); ip != nil {
					return ip.String()
				}
			}
		}
	}
	return ""
}

// NetworkUp reports whether any interface could reach the network.
func NetworkUp() bool {
	return PrimaryIP() != ""
}

func readModel() string {
	for _, path := range modelFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// devicetree strings are NUL terminated
		if m := strings.TrimSpace(string(bytes.TrimRight(data, "\x00"))); m != "" {
			return m
		}
	}
	return ""
}

func parseOSRelease(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, `"'`)
	}
	return out, scanner.Err()
}
