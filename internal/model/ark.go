package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
	"go.uber.org/zap"

	"github.com/xdrshjr/ZImage-WebUI/internal/task"
)

// ArkGenerator runs generations on the Volcengine Ark image endpoint. The
// hosted pipeline fixes its own step schedule, so num_inference_steps is a
// validation-bounded hint that this backend does not forward.
type ArkGenerator struct {
	client    *arkruntime.Client
	modelName string
	http      *http.Client
}

func NewArkGenerator(apiKey, modelName string) *ArkGenerator {
	g := &ArkGenerator{
		modelName: modelName,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	if apiKey != "" {
		g.client = arkruntime.NewClientWithApiKey(apiKey)
	}
	return g
}

func (g *ArkGenerator) Ready() bool {
	return g.client != nil
}

func (g *ArkGenerator) Generate(ctx context.Context, req task.Request) ([]byte, error) {
	if g.client == nil {
		return nil, errors.New("ark client not configured")
	}

	generateReq := arkmodel.GenerateImagesRequest{
		Model:          g.modelName,
		Prompt:         req.Prompt,
		Size:           volcengine.String(fmt.Sprintf("%dx%d", req.Width, req.Height)),
		Seed:           volcengine.Int64(req.Seed),
		ResponseFormat: volcengine.String(arkmodel.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(false),
	}

	start := time.Now()
	resp, err := g.client.GenerateImages(ctx, generateReq)
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("generate images: %s - %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0].Url == nil {
		return nil, errors.New("generate images: response contained no image")
	}
	zap.L().Info("ark generation finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("images", len(resp.Data)))

	return g.download(ctx, *resp.Data[0].Url)
}

func (g *ArkGenerator) download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	return data, nil
}

// GPUInfo: the accelerator lives behind the hosted endpoint, which does
// not publish device metrics, so there is nothing to relay.
func (g *ArkGenerator) GPUInfo() GPUInfo {
	return GPUInfo{
		Available: false,
		Message:   "device metrics are not exposed by the hosted runtime",
	}
}
