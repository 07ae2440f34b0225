package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/coordinator"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

type Scenario struct {
	Name       string
	AutoAssist bool
	Quota      int // zero when the API reports no quota
	Features   coordinator.Features
}

// BudgetPlan writes, for every scenario, the polling interval a coordinator
// would pick and the daily request cost it leads to.
func BudgetPlan(filename string, scenarios []Scenario) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Scenario", "Tier", "Quota", "CallsPerUpdate", "IntervalSeconds", "UpdatesPerDay", "CallsPerDay", "WithinQuota"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, s := range scenarios {
		stats := tado.APIStats{HasAutoAssist: s.AutoAssist}
		if s.Quota > 0 {
			stats.QuotaLimit = &s.Quota
		}
		interval := coordinator.IntervalFor(0, stats, s.Features)
		calls := s.Features.CallsPerUpdate()
		updates := int((24 * time.Hour) / interval)
		perDay := updates * calls

		tier := "free"
		if s.AutoAssist {
			tier = "auto-assist"
		}
		within := s.Quota == 0 || perDay <= s.Quota

		if err := writer.Write([]string{
			s.Name,
			tier,
			strconv.Itoa(s.Quota),
			strconv.Itoa(calls),
			fmt.Sprintf("%.0f", interval.Seconds()),
			strconv.Itoa(updates),
			strconv.Itoa(perDay),
			strconv.FormatBool(within),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}
	}
	return writer.Error()
}

func main() {
	out := flag.String("out", "budget.csv", "output CSV file")
	flag.Parse()

	base := coordinator.Features{}
	all := coordinator.AllFeatures()
	scenarios := []Scenario{
		{Name: "free, base endpoints", Quota: api.FreeTierQuota, Features: base},
		{Name: "free, all endpoints", Quota: api.FreeTierQuota, Features: all},
		{Name: "free, no quota header", Features: all},
		{Name: "auto-assist, base endpoints", AutoAssist: true, Quota: api.PremiumQuota, Features: base},
		{Name: "auto-assist, all endpoints", AutoAssist: true, Quota: api.PremiumQuota, Features: all},
		{Name: "auto-assist, reduced quota", AutoAssist: true, Quota: 5000, Features: all},
	}
	if err := BudgetPlan(*out, scenarios); err != nil {
		log.Fatal(err)
	}
}
