package server

import (
	"context"
	"encoding/base64"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

func dialTest(t *testing.T, diag Diagnoser) (*ExtractorClient, *grpc.ClientConn, *stubSource) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	proc, src := newTestProcessor()
	s, _ := NewGRPCServer(NewExtractorService(proc, diag, nil), nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewExtractorClient(conn), conn, src
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPCProcessText(t *testing.T) {
	client, _, _ := dialTest(t, stubDiag{})

	out, err := client.Process(context.Background(), mustStruct(t, map[string]any{"text": w2Text}))
	require.NoError(t, err)

	res, err := result.FromStruct(out)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentTypeW2, res.DocumentType)
	assert.Equal(t, constants.MethodPatternMatched, res.Method)
	wages, ok := res.Amount(fieldspec.Wages)
	require.True(t, ok)
	assert.Equal(t, 55000.0, wages)
	assert.NotEmpty(t, res.RequestID)
}

func TestGRPCProcessData(t *testing.T) {
	client, _, src := dialTest(t, stubDiag{})

	out, err := client.Process(context.Background(), mustStruct(t, map[string]any{
		"data_base64": base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 scanned")),
		"filename":    "2024_w2.pdf",
		"media_type":  "application/pdf",
	}))
	require.NoError(t, err)
	assert.Equal(t, "W-2", out.GetFields()["document_type"].GetStringValue())
	assert.Equal(t, []string{".pdf"}, src.exts)
	assert.Equal(t, []string{"application/pdf"}, src.types)
}

func TestGRPCProcessInvalid(t *testing.T) {
	client, _, _ := dialTest(t, stubDiag{})

	_, err := client.Process(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Process(context.Background(), mustStruct(t, map[string]any{"data_base64": "%%%"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCRequestIDFromMetadata(t *testing.T) {
	client, _, _ := dialTest(t, stubDiag{})

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-42")
	out, err := client.Process(ctx, mustStruct(t, map[string]any{"text": w2Text}))
	require.NoError(t, err)
	assert.Equal(t, "req-42", out.GetFields()[result.KeyRequestID].GetStringValue())
}

func TestGRPCReprocess(t *testing.T) {
	client, _, _ := dialTest(t, stubDiag{})

	prev := result.ExtractionResult{
		DocumentType: constants.DocumentTypeW2,
		Confidence:   0.85,
		Method:       constants.MethodSyntheticFallback,
		Fields: map[string]normalize.Value{
			fieldspec.Wages: {Kind: fieldspec.KindCurrency, Amount: 70000},
		},
	}
	prevStruct, err := prev.ToStruct()
	require.NoError(t, err)

	out, err := client.Reprocess(context.Background(), &structpb.Struct{Fields: map[string]*structpb.Value{
		"text":     structpb.NewStringValue(w2Text),
		"previous": structpb.NewStructValue(prevStruct),
	}})
	require.NoError(t, err)

	f := out.GetFields()
	assert.True(t, f["changed"].GetBoolValue())
	assert.Equal(t, "synthetic-fallback", f["previous"].GetStructValue().GetFields()["extraction_method"].GetStringValue())
	assert.Equal(t, "pattern-matched", f["current"].GetStructValue().GetFields()["extraction_method"].GetStringValue())

	_, err = client.Reprocess(context.Background(), mustStruct(t, map[string]any{"text": w2Text}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Reprocess(context.Background(), mustStruct(t, map[string]any{
		"text":     w2Text,
		"previous": map[string]any{"confidence": "high"},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCDiagnose(t *testing.T) {
	client, _, _ := dialTest(t, stubDiag{})

	out, err := client.Diagnose(context.Background())
	require.NoError(t, err)
	f := out.GetFields()
	assert.True(t, f["ready"].GetBoolValue())
	assert.Equal(t, "eng", f["language"].GetStringValue())
	assert.Len(t, f["tools"].GetListValue().GetValues(), 2)
}

func TestGRPCDiagnoseWithoutAcquisition(t *testing.T) {
	client, _, _ := dialTest(t, nil)

	_, err := client.Diagnose(context.Background())
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	_, conn, _ := dialTest(t, stubDiag{})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
