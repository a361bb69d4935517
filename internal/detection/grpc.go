package detection

import (
	"context"
	"fmt"
	"image"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/oskar-77/OskarTrackSystem33/internal/tracking"
)

const (
	detectorServiceName = "oskartrack.detector.v1.Detector"
	detectMethod        = "/" + detectorServiceName + "/Detect"
)

// DetectRequest is the gRPC request for one frame.
type DetectRequest struct {
	Image         []byte   `json:"image"` // JPEG
	ConfThreshold float32  `json:"conf_threshold"`
	Classes       []string `json:"classes,omitempty"`
}

// DetectorServer is the server side of the detector service.
type DetectorServer interface {
	Detect(ctx context.Context, req *DetectRequest) (*DetectResponse, error)
}

// RegisterDetectorServer registers srv on s.
func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&detectorServiceDesc, srv)
}

var detectorServiceDesc = grpc.ServiceDesc{
	ServiceName: detectorServiceName,
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "detector.json",
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DetectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectorServer).Detect(ctx, req.(*DetectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCDetector calls a detector service over gRPC with unary requests.
type GRPCDetector struct {
	endpoint string
	opts     Options
	conn     *grpc.ClientConn
}

// NewGRPCDetector creates a client for the detector service at endpoint.
// The connection is established lazily. Extra dial options are appended to
// the defaults (insecure transport, keepalive).
func NewGRPCDetector(endpoint string, opts Options, dialOpts ...grpc.DialOption) (*GRPCDetector, error) {
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	all := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	}, dialOpts...)

	conn, err := grpc.NewClient(endpoint, all...)
	if err != nil {
		return nil, fmt.Errorf("dial detector %s: %w", endpoint, err)
	}
	logf("gRPC detector client for %s", endpoint)
	return &GRPCDetector{endpoint: endpoint, opts: opts, conn: conn}, nil
}

// Detect sends img to the service and returns the person boxes in img's
// pixel space.
func (d *GRPCDetector) Detect(ctx context.Context, img image.Image) ([]tracking.BoundingBox, error) {
	frame, scale := prepareFrame(img, d.opts.MaxWidth)
	data, err := encodeJPEG(frame, d.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	req := &DetectRequest{Image: data, ConfThreshold: float32(d.opts.Confidence)}
	if d.opts.Class != "" {
		req.Classes = []string{d.opts.Class}
	}
	resp := new(DetectResponse)
	if err := d.conn.Invoke(ctx, detectMethod, req, resp); err != nil {
		return nil, fmt.Errorf("detect rpc: %w", err)
	}
	return toBoxes(resp.Detections, d.opts, scale, img.Bounds().Min), nil
}

// Close releases the connection.
func (d *GRPCDetector) Close() error {
	return d.conn.Close()
}
