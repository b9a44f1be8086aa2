package pipeline

import (
	"fmt"

	"github.com/runger/claimguard/internal/artifact"
	"github.com/runger/claimguard/internal/features"
	"github.com/runger/claimguard/internal/model"
)

// clusterModel is the artifact stored for one cluster: the chosen
// classifier together with the scaler fitted on that cluster's rows.
type clusterModel struct {
	Algorithm  string
	Params     string
	Classifier []byte
	Scaler     *features.Scaler
}

func saveClusterModel(store *artifact.Store, clusterID int, sel *model.Selection, clf model.Classifier, scaler *features.Scaler) (string, error) {
	payload, err := model.Encode(clf)
	if err != nil {
		return "", err
	}
	key := artifact.KeyForCluster(clf.Name(), clusterID)
	cm := clusterModel{
		Algorithm:  clf.Name(),
		Params:     sel.Params,
		Classifier: payload,
		Scaler:     scaler,
	}
	if err := store.SaveValue(key, artifact.KindClassifier, clf.Name(), clusterID, cm); err != nil {
		return "", fmt.Errorf("save model for cluster %d: %w", clusterID, err)
	}
	return key, nil
}

// loadClusterModel resolves and loads the classifier trained for a cluster.
func loadClusterModel(store *artifact.Store, clusterID int) (model.Classifier, *features.Scaler, string, error) {
	key, err := store.ResolveKeyForCluster(clusterID)
	if err != nil {
		return nil, nil, "", err
	}
	var cm clusterModel
	if _, err := store.LoadValue(key, &cm); err != nil {
		return nil, nil, key, err
	}
	clf, err := model.Decode(cm.Classifier)
	if err != nil {
		return nil, nil, key, fmt.Errorf("decode %s: %w", key, err)
	}
	if cm.Scaler == nil {
		return nil, nil, key, fmt.Errorf("model %s has no scaler", key)
	}
	return clf, cm.Scaler, key, nil
}
