package deliveries_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/coordinator/coordinatortest"
	"deliveryFieldOps/internal/deliveries"
	"deliveryFieldOps/internal/testutil"
	"deliveryFieldOps/models"
)

func TestCache_OverlappingFetchesBothSettle(t *testing.T) {
	env := coordinatortest.Start(t)
	env.SeedDeliveries(t,
		models.DeliveryRecord{Name: "Maria"},
		models.DeliveryRecord{Name: "Pedro"},
		models.DeliveryRecord{Name: "Ana"},
	)
	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()
	c := deliveries.New(tr, 2*time.Second, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	lens := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			list, err := c.FetchToday(context.Background())
			errs[i], lens[i] = err, len(list)
		}(i)
	}
	wg.Wait()
	for i := range errs {
		if errs[i] != nil || lens[i] != 3 {
			t.Fatalf("fetch %d: len=%d err=%v", i, lens[i], errs[i])
		}
	}
	all := c.All()
	if len(all) != 3 || all[0].Name != "Maria" || all[2].Name != "Ana" {
		t.Fatalf("order lost: %+v", all)
	}
}

func TestCache_StartDeliveryRoundTrip(t *testing.T) {
	env := coordinatortest.Start(t)
	recs := env.SeedDeliveries(t,
		models.DeliveryRecord{Name: "Maria", Status: models.DeliveryStatusAvailable},
		models.DeliveryRecord{Name: "Pedro", Status: models.DeliveryStatusAvailable},
	)

	driver := channel.New(env.ChannelConfig())
	defer driver.Disconnect()
	other := channel.New(env.ChannelConfig())
	defer other.Disconnect()

	mine := deliveries.New(driver, 2*time.Second, nil)
	theirs := deliveries.New(other, 2*time.Second, nil)
	defer mine.Subscribe()()
	defer theirs.Subscribe()()
	if _, err := mine.FetchToday(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := theirs.FetchToday(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if _, err := mine.StartDelivery(context.Background(), recs[1].ID, "joao"); err != nil {
		t.Fatalf("StartDelivery: %v", err)
	}
	testutil.WaitFor(t, 2*time.Second, func() bool {
		got, ok := theirs.Get(recs[1].ID)
		return ok && got.Status == models.DeliveryStatusInProgress && got.Driver == "joao"
	})
	if v := theirs.VisibleTo("maria"); len(v) != 1 || v[0].ID != recs[0].ID {
		t.Fatalf("other driver still sees started delivery: %+v", v)
	}
}
