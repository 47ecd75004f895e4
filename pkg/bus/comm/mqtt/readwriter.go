package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/clock.go/pkg/bus"
)

// Topic suffixes of a device.
const (
	TopicMeta = "meta"
	TopicCmd  = "cmd"
	TopicMsg  = "msg"
)

// DeviceTopic builds the topic of a device.
func DeviceTopic(ref bus.DeviceRef, suffix string) string {
	return ref.Name() + "/" + suffix
}

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
	doneCh   chan struct{}
	once     sync.Once
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		doneCh:   make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForConnector subscribes replies and events of the device and
// publishes commands.
func (p *ReadWriter) ForConnector(ref bus.DeviceRef) *ReadWriter {
	return p.WithTopics(DeviceTopic(ref, TopicMsg), DeviceTopic(ref, TopicCmd))
}

// ForDevice subscribes commands and publishes replies and events.
func (p *ReadWriter) ForDevice(ref bus.DeviceRef) *ReadWriter {
	return p.WithTopics(DeviceTopic(ref, TopicCmd), DeviceTopic(ref, TopicMsg))
}

// Name implements comm.Named.
func (p *ReadWriter) Name() string {
	return "mqtt:" + p.SubTopic
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.doneCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer. It doesn't close the Queue.
func (p *ReadWriter) Close() error {
	p.once.Do(func() { close(p.doneCh) })
	return nil
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer sub.Close()
	if sub.Token.Wait() && sub.Token.Error() != nil {
		return sub.Token.Error()
	}
	defer p.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.doneCh:
		return nil
	}
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.doneCh:
	}
}
