// Package tools provides the executor registry and the built-in tools the
// agent loop can invoke.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// Registry maps tool names to executors. It satisfies chat.Registry.
// Registration happens at startup; lookups are read-only afterwards, so no
// locking is needed.
type Registry struct {
	byName map[string]chat.Tool
	order  []string
}

// NewRegistry builds a registry holding the given tools.
func NewRegistry(tools ...chat.Tool) *Registry {
	r := &Registry{byName: make(map[string]chat.Tool, len(tools))}
	for _, t := range tools {
		name := t.Definition().Name
		if _, dup := r.byName[name]; dup {
			continue
		}
		r.byName[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// Lookup implements chat.Registry.
func (r *Registry) Lookup(name string) (chat.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Definitions implements chat.Registry, in registration order.
func (r *Registry) Definitions() []chat.ToolDefinition {
	defs := make([]chat.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Default returns the registry with the built-in tool set.
func Default() *Registry {
	return NewRegistry(NewWeatherTool())
}

// WeatherTool reports canned current-weather conditions for a location.
// It is a stub executor: conditions are random, which is enough to
// exercise the full tool-call path end to end.
type WeatherTool struct {
	pick func(n int) int
}

// NewWeatherTool builds the weather tool with random condition selection.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{pick: rand.Intn}
}

var (
	weatherConditions   = []string{"sunny", "cloudy", "rainy", "snowy"}
	weatherTemperatures = []string{"20°C", "15°C", "10°C", "5°C", "0°C"}
)

// Definition implements chat.Tool.
func (*WeatherTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "get_current_weather",
		Description: "Get the current weather in a given location",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The city and state, e.g. San Francisco, CA",
				},
			},
			"required": []string{"location"},
		},
	}
}

type weatherArgs struct {
	Location string `json:"location"`
}

// Call implements chat.Tool.
func (t *WeatherTool) Call(_ context.Context, args json.RawMessage) (string, error) {
	var parsed weatherArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("parsing weather arguments: %w", err)
	}
	condition := weatherConditions[t.pick(len(weatherConditions))]
	temperature := weatherTemperatures[t.pick(len(weatherTemperatures))]
	return fmt.Sprintf("The current weather in %s is %s with a temperature of %s.", parsed.Location, condition, temperature), nil
}
