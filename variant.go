// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/platinasystems/pmgr/internal/devtree"
	"gopkg.in/yaml.v3"
)

//go:embed variants/*.yaml
var variantFS embed.FS

// Variant replaces the generic register derivation for chips whose
// "devices" records don't locate their control registers.
type Variant struct {
	Name    string              `yaml:"name"`
	PSRegs  []PSReg             `yaml:"ps-regs"`
	Domains map[string]Override `yaml:"domains"`
}

type Override struct {
	PSReg  uint8 `yaml:"ps-reg"`
	Offset uint8 `yaml:"offset"`
}

// Lookup returns the named domain's override. Unlisted domains get ps-reg 0
// at offset 0, which is only known to be right for some of them.
func (v *Variant) Lookup(name string) Override {
	return v.Domains[name]
}

func ParseVariant(b []byte) (*Variant, error) {
	v := new(Variant)
	if err := yaml.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("%w: variant: %v", ErrConfig, err)
	}
	if len(v.Name) == 0 {
		return nil, fmt.Errorf("%w: variant: missing name", ErrConfig)
	}
	if len(v.PSRegs) == 0 {
		return nil, fmt.Errorf("%w: %s: missing ps-regs", ErrConfig,
			v.Name)
	}
	for name, o := range v.Domains {
		if int(o.PSReg) >= len(v.PSRegs) {
			return nil, fmt.Errorf("%w: %s: %s: ps-reg %d out of range",
				ErrConfig, v.Name, name, o.PSReg)
		}
	}
	return v, nil
}

func LoadVariant(name string) (*Variant, error) {
	b, err := variantFS.ReadFile(path.Join("variants", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: unknown variant", ErrConfig, name)
	}
	return ParseVariant(b)
}

// Variants lists the names of the built-in override tables.
func Variants() []string {
	entries, _ := variantFS.ReadDir("variants")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// selectVariant loads the named variant or, without a name, the first
// built-in variant named by an "/arm-io" compatible entry like
// "arm-io,t6041".
func selectVariant(name string, armio *devtree.Node) (*Variant, error) {
	if len(name) > 0 {
		return LoadVariant(name)
	}
	for _, s := range armio.Strings("compatible") {
		chip := s
		if i := strings.LastIndexByte(s, ','); i >= 0 {
			chip = s[i+1:]
		}
		for _, known := range Variants() {
			if strings.EqualFold(chip, known) {
				return LoadVariant(known)
			}
		}
	}
	return nil, nil
}
