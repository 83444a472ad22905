package interceptors

import "fmt"

// GetProfileConfig returns [http.interceptors.<name>.profiles.<profile>].
func GetProfileConfig(interceptorsCfg map[string]map[string]any, name, profile string) (map[string]any, error) {
	interceptorCfg, ok := interceptorsCfg[name]
	if !ok {
		return nil, fmt.Errorf("no %s interceptor configured, cannot find profile %q", name, profile)
	}
	profiles, ok := interceptorCfg["profiles"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no %s profiles configured, cannot find profile %q", name, profile)
	}
	profileCfg, ok := profiles[profile].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", name, profile)
	}
	return profileCfg, nil
}
