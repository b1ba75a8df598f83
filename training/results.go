package training

import (
	"encoding/json"
	"fmt"
	"os"
)

// FinalInfo summarizes a completed run.
type FinalInfo struct {
	BestValAcc     float64       `json:"best_val_acc"`
	TestAcc        float64       `json:"test_acc"`
	TotalTrainTime float64       `json:"total_train_time"`
	Config         TrainerConfig `json:"config"`
}

// Result is the full record of a training run: the summary plus the
// per-batch training log and per-epoch validation log.
type Result struct {
	FinalInfo FinalInfo  `json:"final_info"`
	TrainLog  []LogEntry `json:"train_log_info"`
	ValLog    []LogEntry `json:"val_log_info"`
}

// SaveResults writes the result as indented JSON.
func SaveResults(result *Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode results: %v", err)
	}
	return nil
}

// LoadResults reads a result written by SaveResults.
func LoadResults(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %v", err)
	}
	defer file.Close()

	var result Result
	if err := json.NewDecoder(file).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode results: %v", err)
	}
	return &result, nil
}
