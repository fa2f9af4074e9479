package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"deliveryFieldOps/internal/auth"
	"deliveryFieldOps/internal/config"
	grpcserver "deliveryFieldOps/internal/grpc"
	"deliveryFieldOps/models"
)

const usage = `usage: dispatchctl [flags] <command> [args]

commands:
  token                               print an operator token
  register <user> <password> [status]
  drivers
  driver-status <user> <status>
  add <delivery.json>                 create or replace a delivery ("-" reads stdin)
  assign <id> <status> [driver]
  list [driver]
  counts
  remove <id>
  broadcast
`

func main() {
	addr := flag.String("addr", "", "dispatch API address (defaults to GRPC_ADDRESS)")
	day := flag.String("day", "", "delivery day, YYYY-MM-DD (defaults to today)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	token, _, err := auth.Issue(cfg.Auth.JWTSecret, "dispatchctl", auth.KindAdmin, time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	args := flag.Args()
	if args[0] == "token" {
		fmt.Println(token)
		return
	}

	target := *addr
	if target == "" {
		target = cfg.GRPC.Address
	}
	c, err := grpcserver.Dial(target, token)
	if err != nil {
		log.Fatalf("dial %s: %v", target, err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, c, *day, args); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func run(ctx context.Context, c *grpcserver.Client, day string, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	switch args[0] {
	case "register":
		d, err := c.RegisterDriver(ctx, arg(1), arg(2), arg(3))
		if err != nil {
			return err
		}
		return printJSON(d)
	case "drivers":
		list, err := c.ListDrivers(ctx, 0, 0)
		if err != nil {
			return err
		}
		return printJSON(list)
	case "driver-status":
		d, err := c.SetDriverStatus(ctx, arg(1), arg(2))
		if err != nil {
			return err
		}
		return printJSON(d)
	case "add":
		rec, err := readRecord(arg(1))
		if err != nil {
			return err
		}
		stored, err := c.UpsertDelivery(ctx, rec)
		if err != nil {
			return err
		}
		return printJSON(stored)
	case "assign":
		rec, err := c.AssignDelivery(ctx, arg(1), models.DeliveryStatus(arg(2)), arg(3))
		if err != nil {
			return err
		}
		return printJSON(rec)
	case "list":
		list, err := c.ListDeliveries(ctx, day, arg(1))
		if err != nil {
			return err
		}
		return printJSON(list)
	case "counts":
		counts, err := c.DeliveryCounts(ctx, day)
		if err != nil {
			return err
		}
		return printJSON(counts)
	case "remove":
		return c.RemoveDelivery(ctx, arg(1))
	case "broadcast":
		d, err := c.BroadcastToday(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("broadcast %s\n", d)
		return nil
	default:
		flag.Usage()
		os.Exit(2)
	}
	return nil
}

func readRecord(path string) (models.DeliveryRecord, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.DeliveryRecord{}, err
	}
	var rec models.DeliveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.DeliveryRecord{}, fmt.Errorf("parse delivery: %w", err)
	}
	return rec, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
