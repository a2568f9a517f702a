package response

type ModelStatus struct {
	ModelId string `json:"modelId"`
	Synced  bool   `json:"synced"`
}

type GetModels struct {
	Models []ModelStatus `json:"models"`
}

func ModelsToResponse(modelIds []string, synced func(modelId string) bool) *GetModels {
	out := make([]ModelStatus, len(modelIds))
	for i, modelId := range modelIds {
		out[i] = ModelStatus{
			ModelId: modelId,
			Synced:  synced(modelId),
		}
	}

	return &GetModels{
		Models: out,
	}
}
