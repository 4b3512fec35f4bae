//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/dispatch"
	inats "github.com/rejoinhq/rejoin/internal/nats"
	"github.com/rejoinhq/rejoin/internal/orchestrator"
	"github.com/rejoinhq/rejoin/internal/timewindow"
)

// TestOrchestratorFlow runs the bus end to end: an inbound member message
// published on the messages stream is routed to its account, evaluated,
// and the agent's reply comes back out on the outbound subject.
func TestOrchestratorFlow(t *testing.T) {
	env := SetupTestEnv(t)
	natsClient := setupNATSContainer(t)
	ctx := context.Background()

	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	// Create an operator and a full-auto account over the API
	email := fmt.Sprintf("orch-%d@example.com", uniqueID())
	RegisterOperator(t, env, email, "password123")
	token := LoginOperator(t, env, email, "password123")

	account := CreateAccount(t, env, token, map[string]any{
		"gym_name":         "Bus Gym",
		"automation_level": "full_auto",
	})
	channelAddr := account["channel_addr"].(string)

	// This engine dispatches onto the bus instead of the capturing
	// dispatcher so the outbound leg is exercised too.
	gate := timewindow.NewGate(8, 8, "UTC")
	engine := conversation.NewEngine(
		env.ConvStore,
		env.Composer,
		env.Model,
		gate,
		dispatch.NewNATSDispatcher(publisher),
		dispatch.NewDeferralQueue(env.RedisClient),
		dispatch.NewApprovalStore(env.Pool),
	)

	orch := orchestrator.NewOrchestrator(
		publisher,
		consumerMgr,
		orchestrator.NewRouter(env.AccountSvc),
		orchestrator.NewValidator(),
		env.QuotaSvc,
		env.AccountSvc,
		engine,
	)

	orchCtx, orchCancel := context.WithCancel(ctx)
	defer orchCancel()

	orchDone := make(chan error, 1)
	go func() {
		orchDone <- orch.Start(orchCtx)
	}()

	// Wait for the orchestrator's consumer to come up
	time.Sleep(500 * time.Millisecond)

	env.Model.Script(`{"action":"reply","reply":"Welcome back! The Tuesday class still has your name on it.","outcomeScore":65,"resolved":false}`)

	inbound := inats.InboundMessage{
		ID:          "orch-test-1",
		ChannelAddr: channelAddr,
		MemberAddr:  "marcus@members.rejoin.test",
		MemberName:  "Marcus",
		Body:        "Hey, thinking about coming back to the gym",
		ReceivedAt:  time.Now().UTC(),
	}
	require.NoError(t, publisher.PublishInboundMessage(ctx, inbound))

	outConsumer, err := consumerMgr.EnsureConsumer(ctx, inats.StreamMessages, "test-outbound", inats.SubjectOutboundMessage)
	require.NoError(t, err)

	var outbound inats.OutboundMessage
	deadline := time.After(10 * time.Second)
	for outbound.ID == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for outbound message")
		default:
		}

		msgs, err := outConsumer.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			continue
		}
		for m := range msgs.Messages() {
			require.NoError(t, json.Unmarshal(m.Data(), &outbound))
			_ = m.Ack()
		}
	}

	assert.Equal(t, "marcus@members.rejoin.test", outbound.MemberAddr)
	assert.Equal(t, account["id"].(string), outbound.AccountID.String())
	assert.Contains(t, outbound.Body, "Tuesday class")

	// The turn is on the thread log with a deterministic thread id
	accountID := outbound.AccountID
	threadID := conversation.ThreadIDFor(accountID, "marcus@members.rejoin.test")
	assert.Equal(t, threadID, outbound.ThreadID)

	thread, err := env.ConvStore.ListThread(ctx, threadID, false)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, conversation.RoleInbound, thread[0].Role)
	assert.Equal(t, conversation.RoleOutbound, thread[1].Role)

	orchCancel()
	select {
	case err := <-orchDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop in time")
	}
}
