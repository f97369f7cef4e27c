package openai

import (
	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"learntrail.dev/internal/config"
)

func NewClientForConfig(cfg *config.Config) *sdk.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.GetOpenAIAPIKey())}
	if base := cfg.GetOpenAIBaseURL(); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	c := sdk.NewClient(opts...)
	return &c
}
