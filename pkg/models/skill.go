package models

// Skill is a loaded SKILL.md manifest: metadata plus the tools it
// contributes to the registry.
type Skill struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Version     string           `yaml:"version,omitempty" json:"version,omitempty"`
	Tools       []ToolDefinition `yaml:"-" json:"tools,omitempty"`
	Dir         string           `yaml:"-" json:"dir"`

	// Body is the manifest's markdown content after the frontmatter,
	// injected into the system prompt when the skill is eligible.
	Body string `yaml:"-" json:"-"`
}

// ToolSpec is the raw frontmatter shape of one tool declared by a skill,
// before its Command is resolved to an absolute, sandboxed path.
type ToolSpec struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Command     string    `yaml:"command"`
	Args        []ArgSpec `yaml:"args"`
}

// SkillManifest is the parsed YAML frontmatter of a SKILL.md file.
type SkillManifest struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Version     string     `yaml:"version"`
	Tools       []ToolSpec `yaml:"tools"`
}
