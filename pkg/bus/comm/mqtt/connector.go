package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/comm"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Connector implements bus.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration

	brokerURL string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	if _, _, err := ClientOptionsFromURL(brokerURL); err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		brokerURL:       brokerURL,
	}, nil
}

// Discover implements bus.Connector.
// Devices are found by their retained metadata.
func (c *Connector) Discover(ctx context.Context) ([]bus.DeviceInfo, error) {
	q, err := NewQueueFromURL(c.brokerURL)
	if err != nil {
		return nil, err
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer q.Close()

	infoCh := make(chan bus.DeviceInfo, 16)
	sub := q.Sub("+/+/"+TopicMeta, Handler(func(topic string, payload []byte) {
		info, ok := ParseMeta(topic, payload)
		if !ok {
			return
		}
		select {
		case infoCh <- info:
		case <-ctx.Done():
		}
	}))
	defer sub.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.NewTimer(dur)
	defer timeout.Stop()
	var res []bus.DeviceInfo
	for {
		select {
		case info := <-infoCh:
			res = append(res, info)
		case <-timeout.C:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// ParseMeta parses a retained metadata message on TYPE/ID/meta.
// An empty payload means the device is gone.
func ParseMeta(topic string, payload []byte) (info bus.DeviceInfo, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[2] != TopicMeta || len(payload) == 0 {
		return
	}
	info.Ref = bus.DeviceRef{Type: items[0], ID: items[1]}
	if err := json.Unmarshal(payload, &info.Meta); err != nil {
		glog.V(1).Infof("mqtt: bad meta of %s: %v", info.Ref.Name(), err)
	}
	return info, info.Ref.IsValid()
}

// Connect implements bus.Connector.
func (c *Connector) Connect(ctx context.Context, ref bus.DeviceRef) (bus.DeviceConn, error) {
	q, err := NewQueueFromURL(c.brokerURL)
	if err != nil {
		return nil, err
	}
	conn := &DeviceConn{Queue: q}
	conn.Init(NewPacketReadWriter(q).ForConnector(ref))
	token := q.Connect()
	if err = fx.RunWithContext(ctx, func() error {
		token.Wait()
		return token.Error()
	}); err != nil {
		q.Close()
		return nil, err
	}
	return conn, nil
}

// DeviceConn implements bus.DeviceConn using MQTT.
type DeviceConn struct {
	comm.DeviceConn
	Queue *Queue
}

// Close disconnects from the broker.
func (c *DeviceConn) Close() error {
	c.DeviceConn.Close()
	return c.Queue.Close()
}
