// Package server exposes the W-2 pipeline over gRPC and HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/ocr"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

// MaxTextChars bounds inline text submissions.
const MaxTextChars = 1 << 20

// Processor is the pipeline surface the transports depend on.
type Processor interface {
	Process(ctx context.Context, in pipeline.Input) result.ExtractionResult
	Reprocess(ctx context.Context, in pipeline.Input, previous result.ExtractionResult) pipeline.ReprocessReport
}

// Diagnoser reports on the acquisition toolchain.
type Diagnoser interface {
	Diagnose(ctx context.Context) ocr.Diagnostics
}

// ExtractorService implements ExtractorServer.
type ExtractorService struct {
	proc   Processor
	diag   Diagnoser
	logger *slog.Logger
}

func NewExtractorService(proc Processor, diag Diagnoser, logger *slog.Logger) *ExtractorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractorService{proc: proc, diag: diag, logger: logger}
}

func (s *ExtractorService) Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := inputFromStruct(req)
	if err != nil {
		s.logger.Warn("grpc.process.invalid", "error", err)
		return nil, common.ToStatus(err)
	}
	res := s.proc.Process(ctx, in)
	out, err := res.ToStruct()
	if err != nil {
		s.logger.Error("grpc.process.encode_failed", "error", err)
		return nil, common.InternalError("encode result")
	}
	return out, nil
}

func (s *ExtractorService) Reprocess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := inputFromStruct(req)
	if err != nil {
		s.logger.Warn("grpc.reprocess.invalid", "error", err)
		return nil, common.ToStatus(err)
	}
	prevStruct := req.GetFields()["previous"].GetStructValue()
	if prevStruct == nil {
		return nil, common.InvalidArgumentError("previous is required")
	}
	prev, err := result.FromStruct(prevStruct)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("previous: %v", err)
	}

	report := s.proc.Reprocess(ctx, in, prev)
	out, err := reportStruct(report)
	if err != nil {
		s.logger.Error("grpc.reprocess.encode_failed", "error", err)
		return nil, common.InternalError("encode report")
	}
	return out, nil
}

func (s *ExtractorService) Diagnose(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.diag == nil {
		return nil, common.ToStatus(common.NewAppError("UNSUPPORTED", "acquisition is disabled", common.ErrUnsupported))
	}
	m, err := diagnosticsMap(s.diag.Diagnose(ctx))
	if err != nil {
		return nil, common.InternalErrorf("encode diagnostics: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode diagnostics: %v", err)
	}
	return out, nil
}

// extractRequest is the transport-neutral form of a Process/Reprocess call.
type extractRequest struct {
	Path      string
	Text      string
	MediaType string
	Filename  string
	Data      []byte
}

func (r extractRequest) validate() error {
	v := common.NewValidator()
	v.Field("text", r.Text, common.MaxLength(MaxTextChars))
	if r.Path == "" && r.Text == "" && len(r.Data) == 0 {
		v.Field("path|text|data", "", common.Required)
	}
	if v.HasErrors() {
		return common.NewAppError("INVALID_REQUEST", v.ErrorMessage(), common.ErrInvalidInput)
	}
	return nil
}

func (r extractRequest) input() pipeline.Input {
	return pipeline.Input{
		Path:         r.Path,
		Data:         r.Data,
		MediaType:    r.MediaType,
		FilenameHint: r.Filename,
		Text:         r.Text,
	}
}

func inputFromStruct(req *structpb.Struct) (pipeline.Input, error) {
	f := req.GetFields()
	r := extractRequest{
		Path:      strings.TrimSpace(f["path"].GetStringValue()),
		Text:      f["text"].GetStringValue(),
		MediaType: f["media_type"].GetStringValue(),
		Filename:  f["filename"].GetStringValue(),
	}
	if enc := f["data_base64"].GetStringValue(); enc != "" {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return pipeline.Input{}, common.NewAppError("INVALID_REQUEST", "data_base64", errors.Join(common.ErrInvalidInput, err))
		}
		r.Data = data
	}
	if err := r.validate(); err != nil {
		return pipeline.Input{}, err
	}
	return r.input(), nil
}

func reportStruct(rep pipeline.ReprocessReport) (*structpb.Struct, error) {
	prev, err := rep.Previous.ToStruct()
	if err != nil {
		return nil, err
	}
	cur, err := rep.Current.ToStruct()
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"previous":         structpb.NewStructValue(prev),
		"current":          structpb.NewStructValue(cur),
		"changed":          structpb.NewBoolValue(rep.Changed),
		"confidence_delta": structpb.NewNumberValue(rep.ConfidenceDelta()),
	}}, nil
}

// diagnosticsView adds the readiness verdict to the report.
type diagnosticsView struct {
	ocr.Diagnostics
	Ready bool `json:"ready"`
}

func diagnosticsMap(d ocr.Diagnostics) (map[string]any, error) {
	b, err := json.Marshal(diagnosticsView{Diagnostics: d, Ready: d.Ready()})
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
