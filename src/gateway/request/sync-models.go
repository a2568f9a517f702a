package request

import "encoding/json"

// Model ids, accepts both a single id and a list
type ModelList []string

func (self *ModelList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*self = ModelList{one}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*self = ModelList(many)
	return nil
}

type StartModelSync struct {
	Models    ModelList `json:"models"`
	FromBlock int64     `json:"fromBlock"`
	ToBlock   int64     `json:"toBlock"`
}

type StopModelSync struct {
	Models ModelList `json:"models"`
}
