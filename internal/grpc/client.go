package grpcserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"deliveryFieldOps/models"
)

// Client calls DispatchService with an operator token.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects to target. Plaintext is used unless opts configure credentials.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: token}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, out proto.Message) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	return c.conn.Invoke(ctx, FullMethod(method), in, out)
}

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDriver creates or resets a driver account.
func (c *Client) RegisterDriver(ctx context.Context, userName, password, status string) (*models.Driver, error) {
	out, err := c.call(ctx, MethodRegisterDriver, map[string]any{"userName": userName, "password": password, "status": status})
	if err != nil {
		return nil, err
	}
	var d models.Driver
	if err := fromStruct(out, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrivers returns one page of driver accounts.
func (c *Client) ListDrivers(ctx context.Context, pageSize, offset int) ([]models.Driver, error) {
	out, err := c.call(ctx, MethodListDrivers, map[string]any{"pageSize": pageSize, "offset": offset})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Drivers []models.Driver `json:"drivers"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Drivers, nil
}

// SetDriverStatus changes a driver's availability.
func (c *Client) SetDriverStatus(ctx context.Context, userName, status string) (*models.Driver, error) {
	out, err := c.call(ctx, MethodSetDriverStatus, map[string]any{"userName": userName, "status": status})
	if err != nil {
		return nil, err
	}
	var d models.Driver
	if err := fromStruct(out, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertDelivery stores rec in today's list and returns it with its id.
func (c *Client) UpsertDelivery(ctx context.Context, rec models.DeliveryRecord) (*models.DeliveryRecord, error) {
	in, err := toStruct(rec)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, MethodUpsertDelivery, in, out); err != nil {
		return nil, err
	}
	var stored models.DeliveryRecord
	if err := fromStruct(out, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// AssignDelivery sets the status and driver of a record.
func (c *Client) AssignDelivery(ctx context.Context, id string, status models.DeliveryStatus, driver string) (*models.DeliveryRecord, error) {
	out, err := c.call(ctx, MethodAssignDelivery, map[string]any{"id": id, "status": string(status), "entregador": driver})
	if err != nil {
		return nil, err
	}
	var rec models.DeliveryRecord
	if err := fromStruct(out, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDeliveries returns the records of day (today when empty), filtered by driver when set.
func (c *Client) ListDeliveries(ctx context.Context, day, driver string) ([]models.DeliveryRecord, error) {
	out, err := c.call(ctx, MethodListDeliveries, map[string]any{"day": day, "driver": driver})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Deliveries []models.DeliveryRecord `json:"deliveries"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Deliveries, nil
}

// DeliveryCounts returns the number of records per status for day (today when empty).
func (c *Client) DeliveryCounts(ctx context.Context, day string) (map[models.DeliveryStatus]int, error) {
	out, err := c.call(ctx, MethodDeliveryCounts, map[string]any{"day": day})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Counts map[models.DeliveryStatus]int `json:"counts"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// RemoveDelivery deletes a record.
func (c *Client) RemoveDelivery(ctx context.Context, id string) error {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodRemoveDelivery, in, new(emptypb.Empty))
}

// BroadcastToday pushes today's list to connected drivers and returns the day.
func (c *Client) BroadcastToday(ctx context.Context) (string, error) {
	out, err := c.call(ctx, MethodBroadcastToday, nil)
	if err != nil {
		return "", err
	}
	return stringField(out, "day"), nil
}
