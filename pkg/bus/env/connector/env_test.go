package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/clock.go/pkg/bus/comm/mqtt"
)

func TestNewConnector(t *testing.T) {
	cases := []struct {
		url    string
		expect interface{}
	}{
		{"mqtt://localhost:1883/clock/", &mqtt.Connector{}},
		{"ws://10.0.0.2:8080/bus", &DialConnector{}},
		{"tcp://10.0.0.2:7000", &DialConnector{}},
		{"mdns://", &MDNSConnector{}},
	}
	for _, c := range cases {
		conf := &Config{RegistryURL: c.url}
		connector, err := conf.NewConnector()
		require.NoError(t, err, c.url)
		assert.IsType(t, c.expect, connector, c.url)
	}

	_, err := (&Config{RegistryURL: "http://x"}).NewConnector()
	assert.Error(t, err)
}

func TestDialConnectorDiscover(t *testing.T) {
	connector, err := (&Config{RegistryURL: "tcp://10.0.0.2:7000"}).NewConnector()
	require.NoError(t, err)
	infos, err := connector.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "tcp/10.0.0.2:7000", infos[0].Ref.Name())
}

func TestConnectRequiresRef(t *testing.T) {
	conf := &Config{RegistryURL: "mqtt://localhost:1883/clock/"}
	_, err := conf.Connect(context.Background())
	assert.Error(t, err)
}
