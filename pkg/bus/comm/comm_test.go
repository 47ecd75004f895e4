package comm_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/bus"
	"github.com/robotalks/clock.go/pkg/bus/comm"
	"github.com/robotalks/clock.go/pkg/bus/comm/stream"
	"github.com/robotalks/clock.go/pkg/bus/msgs"
)

type echoCmd struct {
	Text string `protobuf:"bytes,1,opt,name=text,proto3" json:"text,omitempty"`
}

func (m *echoCmd) NewMessage() fx.Message      { return &echoCmd{} }
func (m *echoCmd) TypeID() uint32              { return msgs.GroupCustom | 1 }
func (m *echoCmd) Serializable() proto.Message { return m }
func (m *echoCmd) ProtoMessage()               {}
func (m *echoCmd) Reset()                      { *m = echoCmd{} }
func (m *echoCmd) String() string              { return proto.CompactTextString(m) }

type ignoredCmd struct{ echoCmd }

func (m *ignoredCmd) NewMessage() fx.Message      { return &ignoredCmd{} }
func (m *ignoredCmd) TypeID() uint32              { return msgs.GroupCustom | 2 }
func (m *ignoredCmd) Serializable() proto.Message { return &m.echoCmd }

// never registered.
type unknownCmd struct{ echoCmd }

func (m *unknownCmd) TypeID() uint32              { return msgs.GroupCustom | 3 }
func (m *unknownCmd) Serializable() proto.Message { return &m.echoCmd }

type tickEvent struct {
	Seq uint32 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
}

func (m *tickEvent) NewMessage() fx.Message      { return &tickEvent{} }
func (m *tickEvent) TypeID() uint32              { return msgs.TypeIDKindEvent | msgs.GroupCustom | 1 }
func (m *tickEvent) Serializable() proto.Message { return m }
func (m *tickEvent) ProtoMessage()               {}
func (m *tickEvent) Reset()                      { *m = tickEvent{} }
func (m *tickEvent) String() string              { return proto.CompactTextString(m) }

func init() {
	msgs.MessageTypes[(*echoCmd)(nil).TypeID()] = (*echoCmd)(nil)
	msgs.MessageTypes[(*ignoredCmd)(nil).TypeID()] = (*ignoredCmd)(nil)
	msgs.MessageTypes[(*tickEvent)(nil).TypeID()] = (*tickEvent)(nil)
}

// echoDevice replies echoCmd in upper case.
func echoDevice(cc fx.ControlContext) error {
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		cmdMsg, ok := mctx.CurrentMessage().(*bus.CommandMsg)
		if !ok {
			return
		}
		if cmd, ok := cmdMsg.Command.Msg().(*echoCmd); ok {
			mctx.MessageTaken()
			if cmd.Text == "" {
				cmdMsg.Command.Done(msgs.NewCommandErrFromMsg("empty"))
				return
			}
			cmdMsg.Command.Done(&echoCmd{Text: strings.ToUpper(cmd.Text)})
		}
	}))
	return nil
}

func startLoop(t *testing.T, l *fx.Loop) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("loop didn't stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func doCommand(t *testing.T, conn bus.DeviceConn, msg fx.Message) (fx.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return comm.Wait(ctx, conn.DoCommand(msg))
}

func TestHubCommandsAndEvents(t *testing.T) {
	hub := comm.NewHub()
	device := fx.NewLoop()
	device.Add(hub, &comm.UnsupportedCommands{})
	device.AddController(fx.PrLvControl, fx.ControlFunc(echoDevice))
	stopDevice := startLoop(t, device)
	defer stopDevice()

	events := make(chan fx.Message, 4)
	devSide, clientSide := net.Pipe()
	go hub.Serve(stream.New(devSide))
	conn := comm.NewDeviceConn(stream.New(clientSide))
	client := fx.NewLoop()
	client.AddController(fx.PrLvControl, fx.ControlFunc(func(cc fx.ControlContext) error {
		cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
			mctx.MessageTaken()
			events <- mctx.CurrentMessage()
		}))
		return nil
	}))

	client.Add(conn)
	stopClient := startLoop(t, client)
	defer stopClient()
	waitFor(t, func() bool { return hub.Len() == 1 })

	reply, err := doCommand(t, conn, &echoCmd{Text: "tick"})
	require.NoError(t, err)
	assert.Equal(t, "TICK", reply.(*echoCmd).Text)

	_, err = doCommand(t, conn, &echoCmd{})
	require.Error(t, err)
	assert.Equal(t, "empty", err.Error())

	_, err = doCommand(t, conn, &ignoredCmd{})
	require.Error(t, err)
	assert.Equal(t, msgs.ErrUnsupportedCommand.Error(), err.Error())

	_, err = doCommand(t, conn, &unknownCmd{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	require.NoError(t, hub.SendEvent(context.Background(), &tickEvent{Seq: 9}))
	select {
	case msg := <-events:
		assert.Equal(t, uint32(9), msg.(*tickEvent).Seq)
	case <-time.After(3 * time.Second):
		require.FailNow(t, "event not received")
	}
	assert.Equal(t, 0, conn.Pending())

	conn.Close()
	waitFor(t, func() bool { return hub.Len() == 0 })
}

func TestDeviceConnExpiration(t *testing.T) {
	devSide, clientSide := net.Pipe()
	defer devSide.Close()
	go func() {
		rw := stream.New(devSide)
		for {
			if _, err := rw.ReadPacket(); err != nil {
				return
			}
		}
	}()
	conn := comm.NewDeviceConn(stream.New(clientSide))
	conn.Expiration = 10 * time.Millisecond
	client := fx.NewLoop()
	client.Interval = 5 * time.Millisecond
	client.Add(conn)
	stop := startLoop(t, client)
	defer stop()

	_, err := doCommand(t, conn, &echoCmd{Text: "lost"})
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Equal(t, 0, conn.Pending())
}

func TestPipeRejectsWrongKinds(t *testing.T) {
	p := comm.NewPipe(stream.New(nil))
	assert.Error(t, p.SendEventMsg(&echoCmd{}))
	assert.Error(t, p.SendCommandMsg(&tickEvent{}, 1))
	assert.Equal(t, msgs.ErrNotSerializable, p.SendEventMsg(&bus.CommandMsg{}))
}

func TestRegistrarMux(t *testing.T) {
	hub1, hub2 := comm.NewHub(), comm.NewHub()
	var mux comm.RegistrarMux
	mux.Add(hub1, hub2)
	assert.Equal(t, 2, mux.Len())
	// no connections, nothing to fail.
	assert.NoError(t, mux.SendEvent(context.Background(), &tickEvent{}))
}
