package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintProgressStopsOnTerminalEvent(t *testing.T) {
	h := events.NewHub(events.HubOptions{Keepalive: 10 * time.Millisecond, Buffer: 8})
	sub := h.Subscribe("s")
	defer sub.Close()

	require.True(t, h.Deliver("s", events.Log(pipeline.StepSearchStart)))
	require.True(t, h.Deliver("s", events.Log(pipeline.StepQueryResults, "Query: a", "Results found: 2")))
	require.True(t, h.Deliver("s", events.Log(pipeline.StepSynthesizeDone)))
	require.True(t, h.Deliver("s", events.Log("after terminal")))

	var out bytes.Buffer
	printProgress(context.Background(), &out, sub)

	assert.Contains(t, out.String(), pipeline.StepSearchStart)
	assert.Contains(t, out.String(), "Query: a; Results found: 2")
	assert.NotContains(t, out.String(), "after terminal")
}

func TestWaitDrainedCancelsPrinterWithoutTerminalEvent(t *testing.T) {
	h := events.NewHub(events.HubOptions{Keepalive: 10 * time.Millisecond, Buffer: 8})
	sub := h.Subscribe("s")
	defer sub.Close()
	require.True(t, h.Deliver("s", events.Log(pipeline.StepSearchStart)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(ctx, &out, sub)
	}()

	start := time.Now()
	waitDrained(done, cancel, 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Error(t, ctx.Err())
	assert.Contains(t, out.String(), pipeline.StepSearchStart)
}

func TestWaitDrainedReturnsWhenPrinterFinished(t *testing.T) {
	done := make(chan struct{})
	close(done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waitDrained(done, cancel, time.Hour)
	assert.NoError(t, ctx.Err())
}
