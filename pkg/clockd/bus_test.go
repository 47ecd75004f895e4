package clockd_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/clock.go/pkg/bus/comm"
	"github.com/robotalks/clock.go/pkg/bus/comm/websocket"
	"github.com/robotalks/clock.go/pkg/clockd"
	"github.com/robotalks/clock.go/pkg/clockd/msgs"
	fx "github.com/robotalks/clock.go/pkg/framework"
	"github.com/robotalks/clock.go/pkg/hw/sim"
)

func TestControllerOverWebsocket(t *testing.T) {
	conf := clockd.NewConfig()
	conf.Server = "time.example.org"
	ctl := clockd.New(conf)
	hub := comm.NewHub()
	ctl.Registrar = hub

	device := fx.NewLoop()
	device.Add(hub, ctl, &comm.UnsupportedCommands{})
	ctl.Init(sim.NewHost().HW())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go device.Run(ctx)

	server := &websocket.Server{Hub: hub}
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(httpServer.URL, "http")+websocket.DefaultPath)
	require.NoError(t, err)
	defer conn.Close()
	events := make(chan *msgs.ClockStatus, 16)
	client := fx.NewLoop()
	client.Add(conn)
	client.AddController(fx.PrLvControl, fx.ControlFunc(func(cc fx.ControlContext) error {
		cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
			if status, ok := mctx.CurrentMessage().(*msgs.ClockStatus); ok {
				mctx.MessageTaken()
				select {
				case events <- status:
				default:
				}
			}
		}))
		return nil
	}))
	go client.Run(ctx)

	do := func(msg fx.Message) (fx.Message, error) {
		cmdCtx, cmdCancel := context.WithTimeout(ctx, 3*time.Second)
		defer cmdCancel()
		return comm.Wait(cmdCtx, conn.DoCommand(msg))
	}

	reply, err := do(&msgs.ClockStatusQuery{})
	require.NoError(t, err)
	status := reply.(*msgs.ClockStatusReply).Status
	require.NotNil(t, status)
	assert.Equal(t, "waiting-dns", status.State)
	assert.Equal(t, "time.example.org", status.Server)
	assert.False(t, status.HasTime)

	_, err = do(&msgs.ClockBind{})
	require.Error(t, err)
	assert.Equal(t, clockd.ErrNoServer.Error(), err.Error())

	_, err = do(&msgs.ClockBind{Server: "pool.example.org"})
	require.NoError(t, err)
	timeout := time.After(3 * time.Second)
	for {
		select {
		case status := <-events:
			if status.Server == "pool.example.org" {
				return
			}
		case <-timeout:
			require.FailNow(t, "status event not received")
		}
	}
}
