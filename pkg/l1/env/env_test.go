package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	port, err := Port(":9100")
	require.NoError(t, err)
	assert.Equal(t, 9100, port)

	port, err = Port("127.0.0.1:80")
	require.NoError(t, err)
	assert.Equal(t, 80, port)

	for _, addr := range []string{"9100", "host:http", ":0", ":70000"} {
		_, err := Port(addr)
		assert.Error(t, err, addr)
	}
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "bot", (&Advertiser{Instance: "bot"}).InstanceName())
	assert.Contains(t, (&Advertiser{}).InstanceName(), "mcucomms-")
}

func TestRobotID(t *testing.T) {
	assert.NotEmpty(t, RobotID())
}
