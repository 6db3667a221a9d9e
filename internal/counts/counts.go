// Package counts validates and summarises measurement count
// distributions at the boundary between the drift estimator and its
// measurement sources. A Counts value maps fixed-width bit labels (the
// outcome of a repeated binary measurement) to non-negative shot counts.
package counts

import (
	"fmt"
	"strings"
)

// Counts maps a bit-label outcome (e.g. "00", "11", or the
// space-separated multi-register form "1 0 111") to the number of shots
// that produced it.
type Counts map[string]int

// Validate checks that every label is exactly width bits of '0'/'1'
// after register separators are removed, and that no count is negative.
// Validation happens here, at the boundary, so downstream consumers can
// assume a well-formed distribution.
func (c Counts) Validate(width int) error {
	if width <= 0 {
		return fmt.Errorf("label width must be positive, got %d", width)
	}
	for label, n := range c {
		if n < 0 {
			return fmt.Errorf("label %q has negative count %d", label, n)
		}
		bits := stripSeparators(label)
		if len(bits) != width {
			return fmt.Errorf("label %q has %d bits, expected %d", label, len(bits), width)
		}
		for _, b := range bits {
			if b != '0' && b != '1' {
				return fmt.Errorf("label %q contains non-binary character %q", label, b)
			}
		}
	}
	return nil
}

// Total returns the total number of shots in the distribution.
func (c Counts) Total() int {
	var total int
	for _, n := range c {
		total += n
	}
	return total
}

// Probability returns the fraction of shots with the given label, or 0
// for an empty distribution.
func (c Counts) Probability(label string) float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c[label]) / float64(total)
}

func stripSeparators(label string) string {
	return strings.ReplaceAll(label, " ", "")
}

// BellFidelity estimates the fidelity of a Bell pair measurement from
// its counts. For |Φ+> the ideal distribution is P(00)=P(11)=0.5, so
// fidelity ~ P(00) + P(11). Zero-weight counts yield exactly 0 (the
// most pessimistic value) rather than an error, so a mode controller
// downstream can still decide.
func BellFidelity(c Counts) float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c["00"]+c["11"]) / float64(total)
}

// Survival returns the probability that a shot produced the target
// label. Compound multi-register labels are matched by prefix or suffix
// after separators are removed, since register ordering varies between
// measurement sources.
func Survival(c Counts, target string) float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	want := stripSeparators(target)
	var hits int
	for label, n := range c {
		bits := stripSeparators(label)
		if bits == want {
			hits += n
			continue
		}
		if len(bits) > len(want) && (strings.HasPrefix(bits, want) || strings.HasSuffix(bits, want)) {
			hits += n
		}
	}
	return float64(hits) / float64(total)
}

// ParityViolationRate returns the fraction of shots whose scout bits
// are neither all-zero nor all-one. Scout qubits share entangled parity:
// any mid-circuit intrusion collapses it, so a mixed scout register is
// the tripwire signal. Labels with three or more space-separated
// registers carry the scout bits in the third register; otherwise the
// trailing numScouts bits are used.
func ParityViolationRate(c Counts, numScouts int) float64 {
	total := c.Total()
	if total == 0 || numScouts <= 0 {
		return 0
	}

	allZero := strings.Repeat("0", numScouts)
	allOne := strings.Repeat("1", numScouts)

	var violations int
	for label, n := range c {
		parts := strings.Fields(label)
		var scoutBits string
		if len(parts) >= 3 {
			scoutBits = parts[2]
		} else {
			bits := stripSeparators(label)
			if len(bits) < numScouts {
				continue
			}
			scoutBits = bits[len(bits)-numScouts:]
		}
		if scoutBits != allZero && scoutBits != allOne {
			violations += n
		}
	}
	return float64(violations) / float64(total)
}

// DetectionReport summarises tripwire detection quality for a pair of
// safe/attack count distributions.
type DetectionReport struct {
	DetectionRate     float64 `json:"detection_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// AnalyzeDetection compares parity violation rates between a safe run
// and a simulated-attack run.
func AnalyzeDetection(safe, attack Counts, numScouts int) DetectionReport {
	return DetectionReport{
		DetectionRate:     ParityViolationRate(attack, numScouts),
		FalsePositiveRate: ParityViolationRate(safe, numScouts),
	}
}
