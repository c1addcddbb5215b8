package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"colonysim.ai/internal/sim/inventory"
)

type Catalogs struct {
	Materials  MaterialCatalog
	Blueprints BlueprintCatalog
}

type MaterialCatalog struct {
	Palette []string
	Defs    map[string]MaterialDef
	Digest  string
}

type MaterialDef struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // "RAW","GOOD","FOOD"
	StackSize int    `json:"stack_size"`
}

type BlueprintCatalog struct {
	ByID   map[string]BlueprintDef
	Digest string
}

// BlueprintDef is a workshop recipe: Inputs are consumed and Outputs
// produced after WorkTicks of work.
type BlueprintDef struct {
	ID        string          `json:"id"`
	Workshop  string          `json:"workshop"`
	Inputs    []MaterialCount `json:"inputs"`
	Outputs   []MaterialCount `json:"outputs"`
	WorkTicks int             `json:"work_ticks"`
	Vacancies int             `json:"vacancies"`
}

type MaterialCount struct {
	Material string `json:"material"`
	Count    int    `json:"count"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadMaterials(filepath.Join(configDir, "materials.json"), &c.Materials); err != nil {
		return nil, err
	}
	if err := loadBlueprints(filepath.Join(configDir, "blueprints.json"), &c.Blueprints, &c.Materials); err != nil {
		return nil, err
	}
	return &c, nil
}

// StackSize implements inventory.Sizer. Unknown materials stack singly.
func (c *Catalogs) StackSize(material string) int {
	if c == nil {
		return 1
	}
	if d, ok := c.Materials.Defs[material]; ok && d.StackSize > 0 {
		return d.StackSize
	}
	return 1
}

var _ inventory.Sizer = (*Catalogs)(nil)

func (c *Catalogs) Blueprint(id string) (BlueprintDef, bool) {
	bp, ok := c.Blueprints.ByID[id]
	return bp, ok
}

// BlueprintIDs lists blueprints in id order.
func (c *Catalogs) BlueprintIDs() []string {
	ids := make([]string, 0, len(c.Blueprints.ByID))
	for id := range c.Blueprints.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadMaterials(path string, out *MaterialCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MaterialDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("materials.json: %w", err)
	}
	out.Defs = map[string]MaterialDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("materials.json: empty id")
		}
		if d.StackSize <= 0 {
			return fmt.Errorf("materials.json: %s: stack_size must be > 0", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadBlueprints(path string, out *BlueprintCatalog, mats *MaterialCatalog) error {
	out.ByID = map[string]BlueprintDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BlueprintDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blueprints.json: %w", err)
	}
	for _, bp := range defs {
		if bp.ID == "" {
			return fmt.Errorf("blueprints.json: empty id")
		}
		if bp.WorkTicks <= 0 {
			return fmt.Errorf("blueprint %s: work_ticks must be > 0", bp.ID)
		}
		for _, mc := range append(append([]MaterialCount(nil), bp.Inputs...), bp.Outputs...) {
			if _, ok := mats.Defs[mc.Material]; !ok {
				return fmt.Errorf("blueprint %s: unknown material %q", bp.ID, mc.Material)
			}
			if mc.Count <= 0 {
				return fmt.Errorf("blueprint %s: %s count must be > 0", bp.ID, mc.Material)
			}
		}
		if bp.Vacancies <= 0 {
			bp.Vacancies = 1
		}
		out.ByID[bp.ID] = bp
	}
	return nil
}
