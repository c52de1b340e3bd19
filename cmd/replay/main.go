// replay runs one #portx signal through the lifecycle evaluator against a
// recorded price path and prints the resulting timeline.
//
//	go run ./cmd/replay -scenario configs/scenarios/long_trailing.yaml
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"signal_bot/internal/intake"
	"signal_bot/internal/lifecycle"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
)

type scenario struct {
	Signal models.SignalRequest
	Start  time.Time
	Step   time.Duration
	Prices []float64
}

type step struct {
	At     time.Time `yaml:"at"`
	Price  float64   `yaml:"price"`
	Status string    `yaml:"status"`
	Stop   float64   `yaml:"stop"`
	Events []string  `yaml:"events,omitempty"`
}

func loadScenario(path string) (scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("step", "5s")
	if err := v.ReadInConfig(); err != nil {
		return scenario{}, errors.Wrap(err, "read scenario")
	}

	req, err := intake.Parse(v.GetString("signal"))
	if err != nil {
		return scenario{}, errors.Wrap(err, "parse signal block")
	}

	sc := scenario{
		Signal: req,
		Start:  v.GetTime("start"),
		Step:   v.GetDuration("step"),
	}
	if sc.Start.IsZero() {
		sc.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if sc.Step <= 0 {
		return scenario{}, errors.Errorf("step must be positive, got %s", sc.Step)
	}
	for i, raw := range v.GetStringSlice("prices") {
		var p float64
		if _, err := fmt.Sscan(raw, &p); err != nil {
			return scenario{}, errors.Wrapf(err, "prices[%d]", i)
		}
		sc.Prices = append(sc.Prices, p)
	}
	if len(sc.Prices) == 0 {
		return scenario{}, errors.New("scenario has no prices")
	}
	return sc, nil
}

// replay feeds the prices one by one and stops at the first closure.
func replay(sc scenario) ([]step, []models.Event, error) {
	s := models.NewSignal("replay", sc.Signal, sc.Start)
	var (
		steps  []step
		events []models.Event
	)
	for i, price := range sc.Prices {
		now := sc.Start.Add(time.Duration(i+1) * sc.Step)
		next, evs := lifecycle.Evaluate(s, price, now)
		if err := lifecycle.CheckTransition(s, next); err != nil {
			return steps, events, errors.Wrapf(err, "tick %d", i)
		}
		s = next

		st := step{At: now, Price: price, Status: string(s.Status), Stop: s.CurrentStopLoss}
		for _, ev := range evs {
			st.Events = append(st.Events, string(ev.Kind))
		}
		steps = append(steps, st)
		events = append(events, evs...)
		if s.Closed() {
			break
		}
	}
	return steps, events, nil
}

func main() {
	path := flag.String("scenario", "configs/scenarios/long_trailing.yaml", "scenario file")
	asYAML := flag.Bool("yaml", false, "print the step table as YAML")
	flag.Parse()

	sc, err := loadScenario(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
	steps, events, err := replay(sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	if *asYAML {
		bs, err := yaml.Marshal(steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", errors.Wrap(err, "marshal steps"))
			os.Exit(1)
		}
		fmt.Print(string(bs))
		return
	}
	for _, ev := range events {
		fmt.Printf("[%s]\n%s\n\n", ev.At.Format(time.RFC3339), notify.Format(ev))
	}
	fmt.Printf("%d ticks, %d events\n", len(steps), len(events))
}
