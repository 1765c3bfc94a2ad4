package etasvc

import (
	"sort"
	"time"

	"github.com/jaktransit/etacast/business/data/schedule"
)

// Fix is one GPS sample for a vehicle, raw vendor fields plus the time features
// derived during preprocessing. Later pipeline stages extend it by composition.
type Fix struct {
	BusCode      string
	Corridor     string
	VendorTripId string
	GpsDatetime  string
	Latitude     float64
	Longitude    float64
	Heading      float64
	Speed        float64
	IsNew        bool

	// derived by preprocess
	Timestamp time.Time
	DayOfWeek int
	HourOfDay int
}

//routedFix is a Fix with route adherence results
type routedFix struct {
	Fix
	DistanceToCorridor float64 //meters
	OnRoute            bool
}

//directedFix is a routedFix with its resolved directional trip shape
type directedFix struct {
	routedFix
	TripShapeId string
}

//stopFix is a directedFix with stop context and congestion bin
type stopFix struct {
	directedFix
	NextStop       string
	PrevStop       string
	NextStopSeq    int
	PrevStopSeq    int
	NextStopDistKm float64
	CongestionBin  int
}

var gpsDatetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

//fixPreprocessor normalizes raw fix batches for one vehicle
type fixPreprocessor struct {
	location *time.Location
}

//preprocess parses timestamps, derives day-of-week (0=Monday) and hour-of-day,
//and returns a new batch sorted ascending by timestamp. The input is unchanged
//and the operation is idempotent.
func (p *fixPreprocessor) preprocess(batch []Fix) ([]Fix, error) {
	result := make([]Fix, len(batch))
	copy(result, batch)

	for i := range result {
		if result[i].Timestamp.IsZero() {
			timestamp, err := p.parseGpsDatetime(result[i].GpsDatetime)
			if err != nil {
				return nil, err
			}
			result[i].Timestamp = timestamp
		}
		local := result[i].Timestamp.In(p.location)
		result[i].DayOfWeek = (int(local.Weekday()) + 6) % 7
		result[i].HourOfDay = local.Hour()
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (p *fixPreprocessor) parseGpsDatetime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range gpsDatetimeLayouts {
		timestamp, err := time.ParseInLocation(layout, value, p.location)
		if err == nil {
			return timestamp, nil
		}
		lastErr = err
	}
	return time.Time{}, newConfigurationErrorf("unparseable gpsdatetime %q: %v", value, lastErr)
}

// StopBinning maps a stop's position in the mean-ETA table to an integer
// congestion bin in [1, numBins-1], derived by uniform binning of mean
// scheduled ETAs over [0, max].
type StopBinning struct {
	numBins  int
	binBySeq map[int]int
}

// BuildStopBinning derives the congestion bin table from the stop mean ETA rows.
func BuildStopBinning(meanETAs []*schedule.StopMeanETA, numBins int) (*StopBinning, error) {
	if numBins < 2 {
		return nil, newConfigurationErrorf("congestion binning requires at least 2 bins, got %d", numBins)
	}
	if len(meanETAs) == 0 {
		return nil, newConfigurationErrorf("stop mean eta table is empty")
	}

	maxETA := 0.0
	for _, row := range meanETAs {
		if row.MeanETA > maxETA {
			maxETA = row.MeanETA
		}
	}
	if maxETA <= 0 {
		return nil, newConfigurationErrorf("stop mean eta table has no positive values")
	}

	width := maxETA / float64(numBins-1)
	binning := StopBinning{
		numBins:  numBins,
		binBySeq: make(map[int]int, len(meanETAs)),
	}
	for _, row := range meanETAs {
		bin := 1
		for b := 1; b < numBins-1; b++ {
			if row.MeanETA > float64(b)*width {
				bin = b + 1
			}
		}
		binning.binBySeq[row.StopSequence] = bin
	}
	return &binning, nil
}

// Bin returns the congestion bin for a stop sequence index.
func (b *StopBinning) Bin(stopSeq int) (int, error) {
	bin, present := b.binBySeq[stopSeq]
	if !present {
		return 0, newConfigurationErrorf("no congestion bin for stop sequence %d", stopSeq)
	}
	return bin, nil
}

//binNextStopCongestion writes each fix's congestion bin from its next stop
//sequence index. Pure; returns a new batch.
func binNextStopCongestion(batch []stopFix, binning *StopBinning) ([]stopFix, error) {
	result := make([]stopFix, len(batch))
	copy(result, batch)
	for i := range result {
		bin, err := binning.Bin(result[i].NextStopSeq)
		if err != nil {
			return nil, err
		}
		result[i].CongestionBin = bin
	}
	return result, nil
}
