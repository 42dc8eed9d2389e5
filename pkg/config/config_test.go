package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbot/mcucomms/pkg/l0/telemetry"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	conf := NewConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	conf.SetupFlagSet(fs)
	require.NoError(t, fs.Parse(args))
	return conf, conf.Load(fs)
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "mcucomms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	conf, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, BusSPI, conf.Bus)
	assert.Equal(t, int64(1000000), conf.SPI.ClockHz)
	assert.Equal(t, 3, conf.SPI.Mode)
	assert.Equal(t, 100*time.Millisecond, conf.Link.ProbeInterval)
	assert.Equal(t, 100*time.Millisecond, conf.Link.PollInterval)
	assert.Zero(t, conf.Link.MaxProbes)
	assert.Equal(t, telemetry.AccelG, conf.AccelUnit)
	assert.NotEmpty(t, conf.RobotID)
}

func TestEnv(t *testing.T) {
	conf := NewConfig()
	conf.applyEnv(func(key string) string {
		return map[string]string{
			"MCU_ROBOT_ID":     "r2",
			"MCU_BUS":          "sim",
			"MCU_SPI_DEVICE":   "SPI1.0",
			"MCU_MQTT_URL":     "mqtt://broker:1883/x/",
			"MCU_METRICS_ADDR": ":9200",
		}[key]
	})
	assert.Equal(t, "r2", conf.RobotID)
	assert.Equal(t, BusSim, conf.Bus)
	assert.Equal(t, "SPI1.0", conf.SPI.Device)
	assert.Equal(t, "mqtt://broker:1883/x/", conf.MQTTBrokerURL)
	assert.Equal(t, ":9200", conf.HTTPAddr)
}

func TestFileAndFlagPrecedence(t *testing.T) {
	path := writeFile(t, `
robot_id: from-file
bus: sim
accel_unit: mps2
link:
  poll_interval: 50ms
  probe_interval: 250ms
  max_probes: 40
sim:
  boot_probes: 7
`)
	conf, err := parse(t, "-config", path, "-id", "from-flag", "-poll-interval", "20ms")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", conf.RobotID)
	assert.Equal(t, BusSim, conf.Bus)
	assert.Equal(t, telemetry.AccelMPS2, conf.AccelUnit)
	assert.Equal(t, 20*time.Millisecond, conf.Link.PollInterval)
	assert.Equal(t, 250*time.Millisecond, conf.Link.ProbeInterval)
	assert.Equal(t, 40, conf.Link.MaxProbes)
	assert.Equal(t, 7, conf.Sim.BootProbes)
	// untouched by the file
	assert.Equal(t, int64(1000000), conf.SPI.ClockHz)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bus", []string{"-bus", "i2c"}},
		{"poll", []string{"-poll-interval", "0s"}},
		{"probe", []string{"-probe-interval", "-1s"}},
		{"mode", []string{"-spi-mode", "5"}},
		{"unit", []string{"-accel-unit", "furlong"}},
		{"id", []string{"-id", ""}},
		{"mdns", []string{"-mdns", "-http", ""}},
	}
	for _, test := range tests {
		_, err := parse(t, test.args...)
		assert.Error(t, err, test.name)
	}
}

func TestBadFile(t *testing.T) {
	_, err := parse(t, "-config", writeFile(t, "link: [1, 2"))
	assert.Error(t, err)
	_, err = parse(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	conf := NewConfig()
	conf.RobotID = "r2"
	assert.Contains(t, conf.Dump(), "robot_id: r2")
}
