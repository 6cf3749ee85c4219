package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-portal/internal/geo"
	"github.com/ukydev/fleet-portal/internal/models"
	"github.com/ukydev/fleet-portal/internal/policy"
)

// Stations the fleet normally fuels at
var cities = []models.Location{
	{Lat: 30.2672, Lon: -97.7431}, // Austin
	{Lat: 29.7604, Lon: -95.3698}, // Houston
	{Lat: 32.7767, Lon: -96.7970}, // Dallas
	{Lat: 29.4241, Lon: -98.4936}, // San Antonio
	{Lat: 31.5493, Lon: -97.1467}, // Waco
	{Lat: 30.6280, Lon: -96.3344}, // College Station
}

// Out-of-region stops used to produce off-route purchases
var farCities = []models.Location{
	{Lat: 30.2266, Lon: -93.2174}, // Lake Charles
	{Lat: 32.5252, Lon: -93.7502}, // Shreveport
	{Lat: 35.2220, Lon: -101.8313}, // Amarillo
}

var (
	fuelMCCs  = []int{5541, 5542}
	otherMCCs = []int{5812, 5813, 7538, 7542, 4784, 7523}
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func jitterLocation(base models.Location, meters float64) models.Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

// VehicleState tracks one vehicle's approved purchases for the current day.
type VehicleState struct {
	VehicleID  string
	Home       models.Location
	Day        int
	FillsToday int
	SpendToday decimal.Decimal
}

func (s *VehicleState) rollDay(now time.Time) {
	if day := now.YearDay(); day != s.Day {
		s.Day = day
		s.FillsToday = 0
		s.SpendToday = decimal.Zero
	}
}

func randomTransaction(s *VehicleState, now time.Time) models.Transaction {
	s.rollDay(now)

	amount := 30 + rand.Float64()*190
	if rand.Float64() < 0.1 {
		amount = 1400 + rand.Float64()*1200
	}

	mcc := fuelMCCs[rand.Intn(len(fuelMCCs))]
	if rand.Float64() < 0.2 {
		mcc = otherMCCs[rand.Intn(len(otherMCCs))]
	}

	loc := jitterLocation(s.Home, 3000)
	if rand.Float64() < 0.1 {
		loc = jitterLocation(farCities[rand.Intn(len(farCities))], 3000)
	}

	return models.Transaction{
		VehicleID:           s.VehicleID,
		Amount:              decimal.NewFromFloat(amount).Round(2).InexactFloat64(),
		Timestamp:           now,
		Location:            loc,
		MCC:                 mcc,
		PriorDailyFillCount: s.FillsToday,
		PriorDailySpend:     s.SpendToday.InexactFloat64(),
	}
}

func (s *VehicleState) record(txn models.Transaction) {
	s.FillsToday++
	s.SpendToday = s.SpendToday.Add(models.Money(txn.Amount))
}

func fetchVehicles(ctx context.Context, apiURL string) ([]models.Vehicle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/vehicles", nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vehicles: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vehicle fetch failed with status: %d", resp.StatusCode)
	}

	var vehicles []models.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	return vehicles, nil
}

func sendTransaction(ctx context.Context, apiURL, policyID string, txn models.Transaction) (policy.Result, error) {
	var result policy.Result
	data, err := json.Marshal(txn)
	if err != nil {
		return result, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	endpoint := apiURL + "/policies/" + url.PathEscape(policyID) + "/evaluate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("failed to send transaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("evaluation failed with status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("failed to decode result: %w", err)
	}
	return result, nil
}

// step sends one transaction for s. Only allowed purchases count toward the
// vehicle's same-day totals; a declined card never completes the sale.
func step(ctx context.Context, apiURL, policyID string, s *VehicleState, now time.Time) (policy.Result, error) {
	txn := randomTransaction(s, now)
	result, err := sendTransaction(ctx, apiURL, policyID, txn)
	if err != nil {
		return result, err
	}

	entry := log.WithFields(log.Fields{
		"vehicle_id":   s.VehicleID,
		"amount":       txn.Amount,
		"mcc":          txn.MCC,
		"km_from_home": math.Round(geo.HaversineKm(s.Home, txn.Location)),
	})
	if result.Allowed {
		s.record(txn)
		entry.Info("Transaction allowed")
	} else {
		entry.WithField("violations", result.Violations).Warn("Transaction declined")
	}
	return result, nil
}

// simulateFleet sends one transaction per tick, taking vehicles in turn, so
// the request rate stays at one per interval whatever the fleet size.
func simulateFleet(ctx context.Context, apiURL, policyID string, states []*VehicleState, interval time.Duration) {
	if len(states) == 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for next := 0; ; next++ {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			s := states[next%len(states)]
			if _, err := step(ctx, apiURL, policyID, s, now); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to evaluate transaction")
			}
		}
	}
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	policyID := os.Getenv("SIM_POLICY_ID")
	if policyID == "" {
		policyID = "pol-fuel-standard"
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"api_url":   apiURL,
		"policy_id": policyID,
		"interval":  interval,
	}).Info("Starting transaction simulation")

	vehicles, err := fetchVehicles(ctx, apiURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to load vehicles")
	}
	if len(vehicles) == 0 {
		log.Error("No vehicles to simulate. Exiting.")
		return
	}

	states := make([]*VehicleState, 0, len(vehicles))
	for _, v := range vehicles {
		states = append(states, &VehicleState{VehicleID: v.ID, Home: v.CurrentLocation})
	}

	log.WithField("vehicles", len(states)).Info("Transaction simulation started")
	simulateFleet(ctx, apiURL, policyID, states, interval)
	log.Info("Simulation stopped")
}
