package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"deliveryFieldOps/internal/app"
	"deliveryFieldOps/internal/config"
	"deliveryFieldOps/internal/geo"
	"deliveryFieldOps/internal/location"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
)

func main() {
	user := flag.String("user", "", "driver user name")
	password := flag.String("password", os.Getenv("FIELDOPS_PASSWORD"), "driver password (or FIELDOPS_PASSWORD)")
	lat := flag.Float64("lat", -23.5505, "simulated start latitude")
	lng := flag.Float64("lng", -46.6333, "simulated start longitude")
	flag.Parse()
	if *user == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "--user and --password are required")
		os.Exit(2)
	}

	// The driver client never verifies tokens, so the development secret default is fine.
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New("driver", cfg.Log.Level)

	provider := location.NewSimulatedProvider(models.Location{Latitude: *lat, Longitude: *lng})
	a, err := app.New(cfg, provider, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.Login(ctx, *user, *password, func(s app.Stage) { fmt.Printf("... %s\n", s) })
	if err != nil {
		if errors.Is(err, app.ErrLocationPermissionDenied) {
			log.Fatalf("location permission is required to work")
		}
		log.Fatalf("login: %v", err)
	}
	if res.FetchErr != nil {
		fmt.Printf("could not load deliveries: %v\n", res.FetchErr)
	}
	fmt.Printf("logged in as %s (%s)\n", res.Session.UserName, res.Session.Status)
	printSummary(a)

	remove := a.Deliveries.OnChange(func([]models.DeliveryRecord) { fmt.Println("deliveries updated") })
	defer remove()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	help()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, a, *user, line); quit {
				return
			}
		}
	}
}

func help() {
	fmt.Println("commands: summary | list | near | start <id> | done <id> | release <id> | notify <id> <message> | refresh | quit")
}

func runCommand(ctx context.Context, a *app.App, user, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	var err error
	switch fields[0] {
	case "summary":
		printSummary(a)
	case "list":
		for i, r := range a.Deliveries.VisibleTo(user) {
			printRecord(r.ListKey(i), r)
		}
	case "near":
		err = printNearest(a, user)
	case "start":
		_, err = a.Deliveries.StartDelivery(ctx, arg(1), user)
	case "done":
		err = setStatus(ctx, a, arg(1), models.DeliveryStatusCompleted)
	case "release":
		err = setStatus(ctx, a, arg(1), models.DeliveryStatusAvailable)
	case "notify":
		if len(fields) < 3 {
			help()
			return false
		}
		err = a.Deliveries.NotifyCustomer(ctx, arg(1), strings.Join(fields[2:], " "))
	case "refresh":
		_, err = a.Deliveries.FetchToday(ctx)
		if err == nil {
			printSummary(a)
		}
	case "quit", "exit":
		fmt.Println("ending the day")
		return true
	default:
		help()
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func setStatus(ctx context.Context, a *app.App, id string, st models.DeliveryStatus) error {
	rec, ok := a.Deliveries.Get(id)
	if !ok {
		return fmt.Errorf("delivery %q not found", id)
	}
	rec.Status = st
	return a.Deliveries.UpdateDelivery(ctx, rec)
}

func printSummary(a *app.App) {
	counts := a.Deliveries.StatusCounts()
	keys := make([]string, 0, len(counts))
	for st := range counts {
		keys = append(keys, string(st))
	}
	sort.Strings(keys)
	fmt.Printf("%d deliveries today\n", a.Deliveries.Len())
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[models.DeliveryStatus(k)])
	}
	for i, r := range a.Deliveries.Recent(3) {
		printRecord(r.ListKey(i), r)
	}
}

func printNearest(a *app.App, user string) error {
	_, here, ok := a.Tracker.LastUpdated()
	if !ok {
		return errors.New("no location yet")
	}
	rec, meters, ok := a.Deliveries.Nearest(here, user)
	if !ok {
		fmt.Println("no delivery with coordinates nearby")
		return nil
	}
	printRecord(rec.ID, rec)
	fmt.Printf("  %s away", geo.FormatDistance(meters))
	if geo.IsWithinRadius(here, *rec.Coordinates, geo.ArrivalRadiusMeters) {
		fmt.Print(" (arrived)")
	}
	fmt.Println()
	return nil
}

func printRecord(key string, r models.DeliveryRecord) {
	st := r.Status
	if st == "" {
		st = models.DeliveryStatusPending
	}
	fmt.Printf("  [%s] %-12s %s, %s %s - %s\n", key, st, r.Name, r.Street, r.Number, r.District)
}
