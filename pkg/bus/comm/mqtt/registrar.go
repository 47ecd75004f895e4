package mqtt

import (
	"context"
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/comm"
)

// Registrar implements bus.Registrar using MQTT.
// The device metadata is published retained while connected and
// cleared by the will when the connection drops.
type Registrar struct {
	Queue *Queue
	Info  bus.DeviceInfo

	meta      []byte
	registrar comm.Registrar
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info bus.DeviceInfo) (*Registrar, error) {
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	metaTopic := DeviceTopic(info.Ref, TopicMeta)
	opts.SetBinaryWill(topicPrefix+metaTopic, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("clock:" + info.Ref.Name())
	}
	r := &Registrar{
		Queue: NewQueue(opts, topicPrefix),
		Info:  info,
		meta:  meta,
	}
	r.Queue.OnConnect = func(*Queue) { r.publishMeta(r.meta) }
	r.registrar.Init(NewPacketReadWriter(r.Queue).ForDevice(info.Ref))
	return r, nil
}

// SendEvent implements bus.Registrar.
func (r *Registrar) SendEvent(ctx context.Context, msg fx.Message) error {
	return r.registrar.SendEvent(ctx, msg)
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.Add(&r.registrar)
	loop.AddRunnable(r)
}

// Run implements Runnable.
func (r *Registrar) Run(ctx context.Context) error {
	if token := r.Queue.Connect(); token.Wait() && token.Error() != nil {
		glog.Warningf("mqtt: connect: %v", token.Error())
	}
	<-ctx.Done()
	r.publishMeta(nil).Wait()
	r.Queue.Close()
	return nil
}

func (r *Registrar) publishMeta(meta []byte) paho.Token {
	return r.Queue.PubWith(DeviceTopic(r.Info.Ref, TopicMeta), meta, 1, true)
}
