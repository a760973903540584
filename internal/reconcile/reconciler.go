package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// InventoryItem is a current stock record at a site.
type InventoryItem struct {
	SiteID        string `json:"site_id"`
	DrugProductID string `json:"drug_product_id"`
	QuantityUnits int    `json:"quantity_units"`
	LotNumber     string `json:"lot_number,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
}

type Shipment struct {
	ShipmentID           string `json:"shipment_id,omitempty"`
	SiteID               string `json:"site_id"`
	DrugProductID        string `json:"drug_product_id"`
	QuantityUnits        int    `json:"quantity_units"`
	LotNumber            string `json:"lot_number,omitempty"`
	ShipmentDate         string `json:"shipment_date,omitempty"`
	TemperatureExcursion bool   `json:"temperature_excursion,omitempty"`
	ExcursionDetails     string `json:"excursion_details,omitempty"`
}

type Dispensing struct {
	SiteID         string `json:"site_id"`
	DrugProductID  string `json:"drug_product_id"`
	QuantityUnits  int    `json:"quantity_units"`
	LotNumber      string `json:"lot_number,omitempty"`
	DispensingDate string `json:"dispensing_date,omitempty"`
}

type Return struct {
	SiteID        string `json:"site_id"`
	DrugProductID string `json:"drug_product_id"`
	QuantityUnits int    `json:"quantity_units"`
	Disposition   string `json:"disposition,omitempty"`
	ReturnDate    string `json:"return_date,omitempty"`
}

type DrugInfo struct {
	Name                  string `json:"name"`
	LotTrackingRequired   bool   `json:"lot_tracking_required"`
	TemperatureControlled bool   `json:"temperature_controlled"`
}

type Input struct {
	DrugInventory        []InventoryItem     `json:"drug_inventory"`
	DrugShipments        []Shipment          `json:"drug_shipments"`
	DrugDispensing       []Dispensing        `json:"drug_dispensing"`
	DrugReturns          []Return            `json:"drug_returns"`
	StudyDrugInfo        map[string]DrugInfo `json:"study_drug_info"`
	ReconciliationPeriod int                 `json:"reconciliation_period"`
}

type ExpiryAlert struct {
	LotNumber    string `json:"lot_number,omitempty"`
	ExpiryDate   string `json:"expiry_date"`
	DaysToExpiry int    `json:"days_to_expiry"`
	Quantity     int    `json:"quantity"`
}

type TemperatureExcursion struct {
	ShipmentID       string `json:"shipment_id,omitempty"`
	ExcursionDetails string `json:"excursion_details"`
}

type ProductReconciliation struct {
	DrugProductID         string                 `json:"drug_product_id"`
	DrugName              string                 `json:"drug_name"`
	ReceivedUnits         int                    `json:"received_units"`
	DispensedUnits        int                    `json:"dispensed_units"`
	ReturnedUnits         int                    `json:"returned_units"`
	DestroyedUnits        int                    `json:"destroyed_units"`
	ExpectedInventory     int                    `json:"expected_inventory"`
	ActualInventory       int                    `json:"actual_inventory"`
	Variance              int                    `json:"variance"`
	LotNumbers            []string               `json:"lot_numbers"`
	ExpiryAlerts          []ExpiryAlert          `json:"expiry_alerts"`
	TemperatureExcursions []TemperatureExcursion `json:"temperature_excursions"`
}

type Discrepancy struct {
	SiteID                string   `json:"site_id"`
	DrugProductID         string   `json:"drug_product_id"`
	DrugName              string   `json:"drug_name"`
	ExpectedInventory     int      `json:"expected_inventory"`
	ActualInventory       int      `json:"actual_inventory"`
	Variance              int      `json:"variance"`
	VarianceType          string   `json:"variance_type"`
	Severity              string   `json:"severity"`
	PossibleCauses        []string `json:"possible_causes"`
	InvestigationRequired bool     `json:"investigation_required"`
}

type Alert struct {
	Type        string `json:"type"`
	DrugProduct string `json:"drug_product"`
	Count       int    `json:"count"`
	Priority    string `json:"priority"`
	SiteID      string `json:"site_id,omitempty"`
}

type SiteReconciliation struct {
	SiteID                 string                            `json:"site_id"`
	ReconciliationStatus   string                            `json:"reconciliation_status"`
	DrugProducts           map[string]*ProductReconciliation `json:"drug_products"`
	TotalReceived          int                               `json:"total_received"`
	TotalDispensed         int                               `json:"total_dispensed"`
	TotalReturned          int                               `json:"total_returned"`
	TotalDestroyed         int                               `json:"total_destroyed"`
	ExpectedInventory      int                               `json:"expected_inventory"`
	ActualInventory        int                               `json:"actual_inventory"`
	InventoryVariance      int                               `json:"inventory_variance"`
	Discrepancies          []Discrepancy                     `json:"discrepancies"`
	Alerts                 []Alert                           `json:"alerts"`
	LastReconciliationDate string                            `json:"last_reconciliation_date"`
}

type OverallStatistics struct {
	TotalSites          int `json:"total_sites"`
	SitesReconciled     int `json:"sites_reconciled"`
	DiscrepanciesFound  int `json:"discrepancies_found"`
	TotalUnitsTracked   int `json:"total_units_tracked"`
	TotalUnitsDispensed int `json:"total_units_dispensed"`
	TotalUnitsReturned  int `json:"total_units_returned"`
	TotalUnitsDestroyed int `json:"total_units_destroyed"`
}

type Period struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

type Insight struct {
	Type           string `json:"type"`
	Finding        string `json:"finding"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

type ReconciliationData struct {
	GeneratedAt          string                         `json:"generated_at"`
	ReconciliationPeriod Period                         `json:"reconciliation_period"`
	OverallStatistics    OverallStatistics              `json:"overall_statistics"`
	SiteReconciliation   map[string]*SiteReconciliation `json:"site_reconciliation"`
	Discrepancies        []Discrepancy                  `json:"discrepancies"`
	AccountabilityAlerts []Alert                        `json:"accountability_alerts"`
	Insights             []Insight                      `json:"insights"`
	Recommendations      []string                       `json:"recommendations"`
}

type Result struct {
	Success            bool                `json:"success"`
	Error              string              `json:"error,omitempty"`
	ReconciliationData *ReconciliationData `json:"reconciliation_data,omitempty"`
}

const maxReturnedDiscrepancies = 20

var severityOrder = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

// Run reconciles drug supplies across all sites found in the input.
func Run(input Input) *Result {
	return runAt(input, time.Now().UTC())
}

func runAt(input Input, now time.Time) *Result {
	if len(input.DrugInventory) == 0 && len(input.DrugShipments) == 0 {
		return &Result{Success: false, Error: "No drug inventory or shipment data provided"}
	}

	period := input.ReconciliationPeriod
	if period <= 0 {
		period = 90
	}
	periodStart := now.AddDate(0, 0, -period)

	sites := map[string]*SiteReconciliation{}
	stats := OverallStatistics{}
	var discrepancies []Discrepancy
	var alerts []Alert

	for _, siteID := range siteIDs(input) {
		site := reconcileSite(input, siteID, periodStart, now)
		sites[siteID] = site

		if site.ReconciliationStatus == "reconciled" {
			stats.SitesReconciled++
		}
		stats.DiscrepanciesFound += len(site.Discrepancies)
		stats.TotalUnitsTracked += site.TotalReceived
		stats.TotalUnitsDispensed += site.TotalDispensed
		stats.TotalUnitsReturned += site.TotalReturned
		stats.TotalUnitsDestroyed += site.TotalDestroyed

		discrepancies = append(discrepancies, site.Discrepancies...)
		alerts = append(alerts, site.Alerts...)
	}
	stats.TotalSites = len(sites)

	sort.SliceStable(discrepancies, func(i, j int) bool {
		si := severityOrder[discrepancies[i].Severity]
		sj := severityOrder[discrepancies[j].Severity]
		if si != sj {
			return si < sj
		}
		return abs(discrepancies[i].Variance) > abs(discrepancies[j].Variance)
	})

	insights := buildInsights(stats, discrepancies, alerts)
	recommendations := buildRecommendations(stats, discrepancies, alerts)

	shown := discrepancies
	if len(shown) > maxReturnedDiscrepancies {
		shown = shown[:maxReturnedDiscrepancies]
	}
	if shown == nil {
		shown = []Discrepancy{}
	}
	if alerts == nil {
		alerts = []Alert{}
	}

	return &Result{
		Success: true,
		ReconciliationData: &ReconciliationData{
			GeneratedAt: now.Format(time.RFC3339),
			ReconciliationPeriod: Period{
				StartDate: periodStart.Format(time.RFC3339),
				EndDate:   now.Format(time.RFC3339),
				Days:      period,
			},
			OverallStatistics:    stats,
			SiteReconciliation:   sites,
			Discrepancies:        shown,
			AccountabilityAlerts: alerts,
			Insights:             insights,
			Recommendations:      recommendations,
		},
	}
}

// siteIDs collects the site ids seen in any data source, sorted for
// deterministic output.
func siteIDs(input Input) []string {
	set := map[string]bool{}
	for _, item := range input.DrugInventory {
		set[item.SiteID] = true
	}
	for _, s := range input.DrugShipments {
		set[s.SiteID] = true
	}
	for _, d := range input.DrugDispensing {
		set[d.SiteID] = true
	}
	for _, r := range input.DrugReturns {
		set[r.SiteID] = true
	}
	delete(set, "")
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func reconcileSite(input Input, siteID string, periodStart, now time.Time) *SiteReconciliation {
	site := &SiteReconciliation{
		SiteID:                 siteID,
		ReconciliationStatus:   "pending",
		DrugProducts:           map[string]*ProductReconciliation{},
		Discrepancies:          []Discrepancy{},
		Alerts:                 []Alert{},
		LastReconciliationDate: now.Format(time.RFC3339),
	}

	var inventory []InventoryItem
	for _, item := range input.DrugInventory {
		if item.SiteID == siteID {
			inventory = append(inventory, item)
		}
	}
	var shipments []Shipment
	for _, s := range input.DrugShipments {
		if s.SiteID == siteID && withinPeriod(s.ShipmentDate, periodStart) {
			shipments = append(shipments, s)
		}
	}
	var dispensing []Dispensing
	for _, d := range input.DrugDispensing {
		if d.SiteID == siteID && withinPeriod(d.DispensingDate, periodStart) {
			dispensing = append(dispensing, d)
		}
	}
	var returns []Return
	for _, r := range input.DrugReturns {
		if r.SiteID == siteID && withinPeriod(r.ReturnDate, periodStart) {
			returns = append(returns, r)
		}
	}

	for _, productID := range productIDs(inventory, shipments, dispensing, returns) {
		info, ok := input.StudyDrugInfo[productID]
		if !ok {
			info = DrugInfo{Name: fmt.Sprintf("Drug Product %s", productID), LotTrackingRequired: true}
		}
		product := reconcileProduct(productID, info, inventory, shipments, dispensing, returns, now, site)
		site.DrugProducts[productID] = product

		site.ExpectedInventory += product.ExpectedInventory
		site.ActualInventory += product.ActualInventory

		if product.Variance != 0 {
			varianceType := "shortage"
			if product.Variance > 0 {
				varianceType = "overage"
			}
			site.Discrepancies = append(site.Discrepancies, Discrepancy{
				SiteID:                siteID,
				DrugProductID:         productID,
				DrugName:              info.Name,
				ExpectedInventory:     product.ExpectedInventory,
				ActualInventory:       product.ActualInventory,
				Variance:              product.Variance,
				VarianceType:          varianceType,
				Severity:              assessSeverity(product.Variance, product.ExpectedInventory),
				PossibleCauses:        possibleCauses(product),
				InvestigationRequired: investigationRequired(product.Variance, product.ExpectedInventory),
			})
		}

		if len(product.TemperatureExcursions) > 0 {
			site.Alerts = append(site.Alerts, Alert{
				Type:        "Temperature Excursion",
				DrugProduct: info.Name,
				Count:       len(product.TemperatureExcursions),
				Priority:    "high",
				SiteID:      siteID,
			})
		}
		expiringSoon := 0
		expiringModerate := 0
		for _, alert := range product.ExpiryAlerts {
			if alert.DaysToExpiry <= 7 {
				expiringSoon++
			} else if alert.DaysToExpiry <= 30 {
				expiringModerate++
			}
		}
		if expiringSoon > 0 {
			site.Alerts = append(site.Alerts, Alert{
				Type:        "Drug Expiring Soon",
				DrugProduct: info.Name,
				Count:       expiringSoon,
				Priority:    "urgent",
				SiteID:      siteID,
			})
		}
		if expiringModerate > 0 {
			site.Alerts = append(site.Alerts, Alert{
				Type:        "Drug Expiring Soon",
				DrugProduct: info.Name,
				Count:       expiringModerate,
				Priority:    "warning",
				SiteID:      siteID,
			})
		}
	}

	site.InventoryVariance = site.ActualInventory - site.ExpectedInventory

	switch {
	case len(site.Discrepancies) == 0:
		site.ReconciliationStatus = "reconciled"
	case anyInvestigationRequired(site.Discrepancies):
		site.ReconciliationStatus = "investigation_required"
	default:
		site.ReconciliationStatus = "minor_discrepancies"
	}
	return site
}

func productIDs(inventory []InventoryItem, shipments []Shipment, dispensing []Dispensing, returns []Return) []string {
	set := map[string]bool{}
	for _, item := range inventory {
		set[item.DrugProductID] = true
	}
	for _, s := range shipments {
		set[s.DrugProductID] = true
	}
	for _, d := range dispensing {
		set[d.DrugProductID] = true
	}
	for _, r := range returns {
		set[r.DrugProductID] = true
	}
	delete(set, "")
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func reconcileProduct(productID string, info DrugInfo, inventory []InventoryItem, shipments []Shipment, dispensing []Dispensing, returns []Return, now time.Time, site *SiteReconciliation) *ProductReconciliation {
	product := &ProductReconciliation{
		DrugProductID:         productID,
		DrugName:              info.Name,
		LotNumbers:            []string{},
		ExpiryAlerts:          []ExpiryAlert{},
		TemperatureExcursions: []TemperatureExcursion{},
	}
	lots := map[string]bool{}

	for _, s := range shipments {
		if s.DrugProductID != productID {
			continue
		}
		product.ReceivedUnits += s.QuantityUnits
		site.TotalReceived += s.QuantityUnits
		if s.LotNumber != "" {
			lots[s.LotNumber] = true
		}
		if s.TemperatureExcursion {
			details := s.ExcursionDetails
			if details == "" {
				details = "Temperature excursion reported"
			}
			product.TemperatureExcursions = append(product.TemperatureExcursions, TemperatureExcursion{
				ShipmentID:       s.ShipmentID,
				ExcursionDetails: details,
			})
		}
	}
	for _, d := range dispensing {
		if d.DrugProductID != productID {
			continue
		}
		product.DispensedUnits += d.QuantityUnits
		site.TotalDispensed += d.QuantityUnits
		if d.LotNumber != "" {
			lots[d.LotNumber] = true
		}
	}
	for _, r := range returns {
		if r.DrugProductID != productID {
			continue
		}
		switch r.Disposition {
		case "returned":
			product.ReturnedUnits += r.QuantityUnits
			site.TotalReturned += r.QuantityUnits
		case "destroyed":
			product.DestroyedUnits += r.QuantityUnits
			site.TotalDestroyed += r.QuantityUnits
		}
	}

	for _, item := range inventory {
		if item.DrugProductID != productID {
			continue
		}
		product.ActualInventory += item.QuantityUnits
		if item.ExpiryDate == "" {
			continue
		}
		expiry, err := time.Parse("2006-01-02", item.ExpiryDate)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(now).Hours() / 24)
		if days <= 30 {
			product.ExpiryAlerts = append(product.ExpiryAlerts, ExpiryAlert{
				LotNumber:    item.LotNumber,
				ExpiryDate:   item.ExpiryDate,
				DaysToExpiry: days,
				Quantity:     item.QuantityUnits,
			})
		}
	}

	product.ExpectedInventory = product.ReceivedUnits - product.DispensedUnits - product.ReturnedUnits - product.DestroyedUnits
	product.Variance = product.ActualInventory - product.ExpectedInventory

	for lot := range lots {
		product.LotNumbers = append(product.LotNumbers, lot)
	}
	sort.Strings(product.LotNumbers)
	return product
}

func withinPeriod(dateStr string, periodStart time.Time) bool {
	if dateStr == "" {
		return false
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		date, err = time.Parse(time.RFC3339, dateStr)
		if err != nil {
			return false
		}
	}
	return !date.Before(periodStart)
}

func assessSeverity(variance, expected int) string {
	if expected == 0 {
		if variance != 0 {
			return "critical"
		}
		return "low"
	}
	pct := float64(abs(variance)) / float64(abs(expected))
	av := abs(variance)
	switch {
	case av >= 10 || pct >= 0.5:
		return "critical"
	case av >= 5 || pct >= 0.2:
		return "high"
	case av >= 2 || pct >= 0.1:
		return "medium"
	default:
		return "low"
	}
}

func investigationRequired(variance, expected int) bool {
	if abs(variance) > 1 {
		return true
	}
	denom := expected
	if denom < 1 {
		denom = 1
	}
	return math.Abs(float64(variance)/float64(denom)) > 0.1
}

func possibleCauses(product *ProductReconciliation) []string {
	var causes []string
	if product.Variance > 0 {
		causes = append(causes,
			"Unreported returns or unused drug not documented",
			"Dispensing records not properly updated",
			"Double counting in inventory")
	} else {
		causes = append(causes,
			"Undocumented dispensing or distribution",
			"Drug wastage or loss not recorded",
			"Inventory counting errors",
			"Theft or diversion")
	}
	if len(product.TemperatureExcursions) > 0 {
		causes = append(causes, "Drug destruction due to temperature excursions")
	}
	if len(product.ExpiryAlerts) > 0 {
		causes = append(causes, "Drug destruction due to expiry")
	}
	return causes
}

func anyInvestigationRequired(discrepancies []Discrepancy) bool {
	for _, d := range discrepancies {
		if d.InvestigationRequired {
			return true
		}
	}
	return false
}

func buildInsights(stats OverallStatistics, discrepancies []Discrepancy, alerts []Alert) []Insight {
	insights := []Insight{}
	totalSites := stats.TotalSites
	if totalSites < 1 {
		totalSites = 1
	}
	rate := float64(stats.SitesReconciled) / float64(totalSites) * 100
	if rate < 90 {
		insights = append(insights, Insight{
			Type:           "Low Reconciliation Rate",
			Finding:        fmt.Sprintf("Only %.1f%% of sites have clean reconciliation", rate),
			Impact:         "Drug accountability compliance risk",
			Recommendation: "Investigate discrepancies and improve tracking procedures",
		})
	}
	major := 0
	for _, d := range discrepancies {
		if d.Severity == "critical" || d.Severity == "high" {
			major++
		}
	}
	if major > 0 {
		insights = append(insights, Insight{
			Type:           "Major Discrepancies Found",
			Finding:        fmt.Sprintf("%d major drug accountability discrepancies identified", major),
			Impact:         "Potential regulatory compliance issues and study integrity concerns",
			Recommendation: "Immediate investigation and corrective action required",
		})
	}
	excursions := 0
	for _, a := range alerts {
		if a.Type == "Temperature Excursion" {
			excursions++
		}
	}
	if excursions > 0 {
		insights = append(insights, Insight{
			Type:           "Temperature Control Issues",
			Finding:        fmt.Sprintf("%d temperature excursion events reported", excursions),
			Impact:         "Drug potency and safety may be compromised",
			Recommendation: "Review cold chain procedures and investigate affected lots",
		})
	}
	return insights
}

func buildRecommendations(stats OverallStatistics, discrepancies []Discrepancy, alerts []Alert) []string {
	recommendations := []string{}
	if float64(stats.DiscrepanciesFound) > float64(stats.TotalSites)*0.2 {
		recommendations = append(recommendations, "High discrepancy rate - review drug accountability procedures across all sites")
	}
	critical := 0
	for _, d := range discrepancies {
		if d.Severity == "critical" {
			critical++
		}
	}
	if critical > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d critical discrepancies require immediate investigation", critical))
	}
	expiring := 0
	for _, a := range alerts {
		if a.Type == "Drug Expiring Soon" {
			expiring++
		}
	}
	if expiring > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d sites have drugs expiring soon - coordinate return or usage", expiring))
	}
	return recommendations
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Tool adapts Run to the registry contract.
func Tool() func(context.Context, []byte) any {
	return func(_ context.Context, raw []byte) any {
		var input Input
		if err := json.Unmarshal(raw, &input); err != nil {
			return &Result{Success: false, Error: fmt.Sprintf("Invalid input: %v", err)}
		}
		return Run(input)
	}
}
