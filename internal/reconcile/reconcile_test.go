package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/records"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	repo       *orders.Repository
	consistent string
	drifted    string
	orphan     string
}

func seed(t *testing.T) fixture {
	ctx := context.Background()
	repo := orders.NewRepository(records.NewMemoryStore())

	create := func(total int64, lines ...domain.OrderLine) string {
		o, err := repo.CreateHeader(ctx, &domain.Order{
			UserID:        "u1",
			Subtotal:      decimal.NewFromInt(total),
			TotalAmount:   decimal.NewFromInt(total),
			PaymentMethod: domain.PaymentMethodCashOnDelivery,
			PaymentStatus: domain.PaymentStatusPending,
		})
		require.NoError(t, err)
		if len(lines) > 0 {
			_, err = repo.CreateLines(ctx, o.ID, lines)
			require.NoError(t, err)
		}
		return o.ID
	}

	return fixture{
		repo:       repo,
		consistent: create(1500, domain.OrderLine{ProductID: "a", Quantity: 3, UnitPriceAtPurchase: decimal.NewFromInt(500)}),
		// header says 900 but lines add up to 1000
		drifted: create(900, domain.OrderLine{ProductID: "b", Quantity: 2, UnitPriceAtPurchase: decimal.NewFromInt(500)}),
		orphan:  create(700),
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFlag, p)

	p, err = ParsePolicy("correct")
	require.NoError(t, err)
	assert.Equal(t, PolicyCorrect, p)

	_, err = ParsePolicy("delete")
	assert.Error(t, err)
}

func TestAudit(t *testing.T) {
	f := seed(t)
	r := NewReconciler(f.repo, PolicyFlag, zap.NewNop())

	drifts, err := r.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 2)

	byID := map[string]Drift{}
	for _, d := range drifts {
		byID[d.OrderID] = d
	}
	assert.NotContains(t, byID, f.consistent)

	d := byID[f.drifted]
	assert.True(t, decimal.NewFromInt(900).Equal(d.Recorded))
	assert.True(t, decimal.NewFromInt(1000).Equal(d.Expected))
	assert.False(t, d.Orphaned)
	assert.Equal(t, 1, d.LineCount)

	assert.True(t, byID[f.orphan].Orphaned)
}

func TestApply_FlagPolicyWritesNothing(t *testing.T) {
	f := seed(t)
	r := NewReconciler(f.repo, PolicyFlag, zap.NewNop())
	ctx := context.Background()

	drifts, err := r.Audit(ctx)
	require.NoError(t, err)

	res, err := r.Apply(ctx, drifts)
	require.NoError(t, err)
	assert.Empty(t, res.Corrected)
	assert.ElementsMatch(t, []string{f.drifted, f.orphan}, res.Flagged)

	o, err := f.repo.Get(ctx, f.drifted)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(o.TotalAmount))
}

func TestApply_CorrectPolicy(t *testing.T) {
	f := seed(t)
	r := NewReconciler(f.repo, PolicyCorrect, zap.NewNop())
	ctx := context.Background()

	drifts, err := r.Audit(ctx)
	require.NoError(t, err)

	res, err := r.Apply(ctx, drifts)
	require.NoError(t, err)
	assert.Equal(t, []string{f.drifted}, res.Corrected)
	assert.Equal(t, []string{f.orphan}, res.Flagged)

	o, err := f.repo.Get(ctx, f.drifted)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(o.TotalAmount))

	// the orphan keeps its recorded total
	orphan, err := f.repo.Get(ctx, f.orphan)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(700).Equal(orphan.TotalAmount))

	drifts, err = r.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, f.orphan, drifts[0].OrderID)
}

func TestCheck(t *testing.T) {
	f := seed(t)
	r := NewReconciler(f.repo, PolicyFlag, zap.NewNop())
	ctx := context.Background()

	d, err := r.Check(ctx, f.consistent)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = r.Check(ctx, f.orphan)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Orphaned)

	_, err = r.Check(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

type fakeWriter struct {
	m    sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublisher_ReportOrphan(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}

	err := p.ReportOrphan(context.Background(), checkout.OrphanReport{
		OrderID:     "o-1",
		UserID:      "u1",
		TotalAmount: decimal.NewFromInt(700),
		Reason:      "timeout",
		DetectedAt:  time.Now(),
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("o-1"), w.msgs[0].Key)
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(eventOrphanedHeader), w.msgs[0].Headers[0].Value)

	var got checkout.OrphanReport
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "o-1", got.OrderID)
	assert.True(t, decimal.NewFromInt(700).Equal(got.TotalAmount))
}

func TestPublisher_WriteError(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: errors.New("broker down")}}
	err := p.ReportOrphan(context.Background(), checkout.OrphanReport{OrderID: "o-1"})
	assert.ErrorContains(t, err, "broker down")
}

type fakeReader struct {
	msgs chan kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

func reportMessage(t *testing.T, orderID string) kafka.Message {
	payload, err := json.Marshal(checkout.OrphanReport{OrderID: orderID})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(orderID), Value: payload}
}

func TestConsumer_CorrectsReportedDrift(t *testing.T) {
	f := seed(t)
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	c := &Consumer{
		reconciler: NewReconciler(f.repo, PolicyCorrect, zap.NewNop()),
		reader:     reader,
		logger:     zap.NewNop(),
	}
	ctx := context.Background()

	reader.msgs <- reportMessage(t, f.drifted)
	reader.msgs <- reportMessage(t, f.orphan)
	reader.msgs <- kafka.Message{Value: []byte("not json")}
	for i := 0; i < 3; i++ {
		c.processMessage(ctx)
	}

	o, err := f.repo.Get(ctx, f.drifted)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(o.TotalAmount))

	orphan, err := f.repo.Get(ctx, f.orphan)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(700).Equal(orphan.TotalAmount))
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	f := seed(t)
	c := &Consumer{
		reconciler: NewReconciler(f.repo, PolicyFlag, zap.NewNop()),
		reader:     &fakeReader{msgs: make(chan kafka.Message)},
		logger:     zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
