package grpcserver

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"deliveryFieldOps/internal/auth"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
	"deliveryFieldOps/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Broadcaster pushes the day's delivery list to connected drivers.
type Broadcaster interface {
	Today() string
	BroadcastDeliveries(ctx context.Context) error
}

// DispatchServer implements DispatchService for dispatch operators. Every
// method requires an admin principal.
type DispatchServer struct {
	Drivers     repository.DriverRepositoryI
	Deliveries  repository.DeliveryRepositoryI
	Broadcaster Broadcaster
	Log         *slog.Logger
}

var _ DispatchService = (*DispatchServer)(nil)

func (s *DispatchServer) logger() *slog.Logger {
	if s.Log == nil {
		return logging.Discard()
	}
	return s.Log
}

// RegisterDriver creates a driver account or resets its password.
// Request: {userName, password, status?}.
func (s *DispatchServer) RegisterDriver(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	user := strings.TrimSpace(stringField(req, "userName"))
	password := stringField(req, "password")
	if user == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "userName and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "hash password: %v", err)
	}
	d, err := s.Drivers.Upsert(ctx, user, string(hash), stringField(req, "status"))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "save driver: %v", err)
	}
	s.logger().Info("driver registered", "driver", d.UserName)
	return toStruct(d)
}

// ListDrivers pages through driver accounts. Request: {pageSize?, offset?}.
func (s *DispatchServer) ListDrivers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	size := pageSize(intField(req, "pageSize"))
	list, err := s.Drivers.List(ctx, size, intField(req, "offset"))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list drivers: %v", err)
	}
	return listStruct("drivers", list)
}

// SetDriverStatus changes a driver's availability. Request: {userName, status}.
func (s *DispatchServer) SetDriverStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	user, st := stringField(req, "userName"), strings.TrimSpace(stringField(req, "status"))
	if user == "" || st == "" {
		return nil, status.Error(codes.InvalidArgument, "userName and status are required")
	}
	if err := s.Drivers.UpdateStatus(ctx, user, st); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.Error(codes.NotFound, "driver not found")
		}
		return nil, status.Errorf(codes.Internal, "update driver: %v", err)
	}
	d, err := s.Drivers.GetByUsername(ctx, user)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get driver: %v", err)
	}
	if d == nil {
		return nil, status.Error(codes.NotFound, "driver not found")
	}
	return toStruct(d)
}

// UpsertDelivery stores a record in today's list, assigning an id when it has
// none, and pushes the new list to drivers. Request: a delivery record.
func (s *DispatchServer) UpsertDelivery(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	var rec models.DeliveryRecord
	if err := fromStruct(req, &rec); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid delivery: %v", err)
	}
	stored, err := s.Deliveries.Upsert(ctx, s.Broadcaster.Today(), rec)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "save delivery: %v", err)
	}
	s.broadcast(ctx)
	return toStruct(stored)
}

// AssignDelivery sets a record's status and driver. Request: {id, status, entregador?}.
func (s *DispatchServer) AssignDelivery(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	id := stringField(req, "id")
	st := models.DeliveryStatus(stringField(req, "status"))
	if id == "" || st == "" {
		return nil, status.Error(codes.InvalidArgument, "id and status are required")
	}
	if err := s.Deliveries.UpdateStatus(ctx, id, st, stringField(req, "entregador")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.Error(codes.NotFound, "delivery not found")
		}
		return nil, status.Errorf(codes.Internal, "update delivery: %v", err)
	}
	rec, err := s.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get delivery: %v", err)
	}
	if rec == nil {
		return nil, status.Error(codes.NotFound, "delivery not found")
	}
	s.broadcast(ctx)
	return toStruct(rec)
}

// ListDeliveries returns a day's list, optionally only one driver's records.
// Request: {day?, driver?}; day defaults to today.
func (s *DispatchServer) ListDeliveries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	day := s.day(req)
	var (
		list []models.DeliveryRecord
		err  error
	)
	if driver := stringField(req, "driver"); driver != "" {
		list, err = s.Deliveries.ListByDriver(ctx, day, driver)
	} else {
		list, err = s.Deliveries.ListByDay(ctx, day)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list deliveries: %v", err)
	}
	return listStruct("deliveries", list)
}

// DeliveryCounts returns the number of records per status for a day. Request: {day?}.
func (s *DispatchServer) DeliveryCounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	counts, err := s.Deliveries.CountByStatus(ctx, s.day(req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "count deliveries: %v", err)
	}
	out := make(map[string]any, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	return structpb.NewStruct(map[string]any{"counts": out})
}

// RemoveDelivery deletes a record. Request: {id}.
func (s *DispatchServer) RemoveDelivery(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	id := stringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.Deliveries.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.Error(codes.NotFound, "delivery not found")
		}
		return nil, status.Errorf(codes.Internal, "delete delivery: %v", err)
	}
	s.broadcast(ctx)
	return &emptypb.Empty{}, nil
}

// BroadcastToday pushes today's list to every connected driver.
func (s *DispatchServer) BroadcastToday(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.Broadcaster.BroadcastDeliveries(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "broadcast: %v", err)
	}
	return structpb.NewStruct(map[string]any{"day": s.Broadcaster.Today()})
}

// broadcast failures do not fail the mutation that triggered them.
func (s *DispatchServer) broadcast(ctx context.Context) {
	if err := s.Broadcaster.BroadcastDeliveries(ctx); err != nil {
		s.logger().Warn("broadcast deliveries", "error", err)
	}
}

func (s *DispatchServer) day(req *structpb.Struct) string {
	if d := strings.TrimSpace(stringField(req, "day")); d != "" {
		return d
	}
	return s.Broadcaster.Today()
}

func pageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
