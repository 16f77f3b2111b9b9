// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"os"
	"time"
)

// =============================================================================
// get_weather
// =============================================================================

// Weather is the get_weather payload.
type Weather struct {
	Temp      string `json:"temp"`
	Condition string `json:"condition"`
	Humidity  string `json:"humidity"`
}

// weatherTable is the fixed lookup used by get_weather.
var weatherTable = map[string]Weather{
	"Paris":       {"22°C", "Partly Cloudy", "65%"},
	"London":      {"18°C", "Rainy", "80%"},
	"New York":    {"25°C", "Sunny", "45%"},
	"Tokyo":       {"28°C", "Clear", "70%"},
	"Los Angeles": {"24°C", "Sunny", "55%"},
	"Berlin":      {"19°C", "Cloudy", "70%"},
}

var defaultWeather = Weather{"20°C", "Unknown", "50%"}

// LookupWeather returns the table entry for location, or the default.
func LookupWeather(location string) Weather {
	if w, ok := weatherTable[location]; ok {
		return w
	}
	return defaultWeather
}

// WeatherTool reports canned weather for a city.
var WeatherTool = &Tool{
	Name:        "get_weather",
	Description: "Get current weather information for a specific location",
	Schema: Schema{Parameters: []Parameter{{
		Name:        "location",
		Type:        "string",
		Required:    true,
		Description: "City name (e.g., Paris, London, New York)",
	}}},
	Executor: ExecutorFunc(func(_ context.Context, params map[string]interface{}) (Result, error) {
		return JSONResult("get_weather", LookupWeather(getString(params, "location", "")))
	}),
}

// =============================================================================
// calculate
// =============================================================================

type calculation struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// CalculateTool evaluates arithmetic with a parser; nothing is executed.
var CalculateTool = &Tool{
	Name:        "calculate",
	Description: "Perform mathematical calculations",
	Schema: Schema{Parameters: []Parameter{{
		Name:        "expression",
		Type:        "string",
		Required:    true,
		Description: "Mathematical expression to evaluate (e.g., '2+2', '10*5', 'sqrt(16)')",
	}}},
	Executor: ExecutorFunc(func(_ context.Context, params map[string]interface{}) (Result, error) {
		expr := getString(params, "expression", "")
		value, err := Evaluate(expr)
		if err != nil {
			return ErrorResult("calculate", MsgInvalidExpression), nil
		}
		return JSONResult("calculate", calculation{Expression: expr, Result: value})
	}),
}

// =============================================================================
// get_current_time
// =============================================================================

type currentTime struct {
	Datetime  string `json:"datetime"`
	LocalTime string `json:"local_time"`
	Timezone  string `json:"timezone"`
}

// NewCurrentTimeTool returns get_current_time bound to the given clock.
func NewCurrentTimeTool(now func() time.Time) *Tool {
	if now == nil {
		now = time.Now
	}
	return &Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time",
		Schema: Schema{Parameters: []Parameter{{
			Name:        "timezone",
			Type:        "string",
			Description: "Timezone (optional, defaults to local)",
		}}},
		Executor: ExecutorFunc(func(_ context.Context, params map[string]interface{}) (Result, error) {
			t := now()
			loc, name := resolveZone(getString(params, "timezone", ""), t)
			return JSONResult("get_current_time", currentTime{
				Datetime:  t.UTC().Format("2006-01-02T15:04:05.000Z"),
				LocalTime: t.In(loc).Format("1/2/2006, 3:04:05 PM"),
				Timezone:  name,
			})
		}),
	}
}

// resolveZone picks the requested IANA zone when valid, then $TZ, then the
// process zone.
func resolveZone(requested string, t time.Time) (*time.Location, string) {
	if requested != "" {
		if loc, err := time.LoadLocation(requested); err == nil {
			return loc, loc.String()
		}
	}
	if tz := os.Getenv("TZ"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc, loc.String()
		}
	}
	name := time.Local.String()
	if name == "Local" {
		name, _ = t.In(time.Local).Zone()
	}
	return time.Local, name
}
