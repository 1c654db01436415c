// Package skills discovers, parses, and hot-reloads on-disk skill
// bundles, deriving a {tool_name -> ToolDefinition} registry.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/runtime/pkg/models"
)

const (
	// SkillFilename is the manifest file every skill directory must
	// contain. Grounded on internal/skills/parser.go.
	SkillFilename = "SKILL.md"

	// FrontmatterDelimiter marks the start/end of the YAML frontmatter
	// block, same convention as the teacher.
	FrontmatterDelimiter = "---"
)

// ParseFile reads and parses one skill's SKILL.md.
func ParseFile(path string) (*models.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses SKILL.md content (manifest frontmatter + tools list +
// markdown body) into a models.Skill rooted at dir. This is the spec's
// point of departure from the teacher: the frontmatter here also
// declares a `tools` list with command + arg specs, which the teacher's
// own skills never do — parsed with the same splitFrontmatter +
// gopkg.in/yaml.v3 technique.
func Parse(data []byte, dir string) (*models.Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var manifest models.SkillManifest
	if err := yaml.Unmarshal(frontmatter, &manifest); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}

	skill := &models.Skill{
		Name:        manifest.Name,
		Description: manifest.Description,
		Version:     manifest.Version,
		Dir:         dir,
		Body:        strings.TrimSpace(string(body)),
	}

	seen := map[string]bool{}
	for _, ts := range manifest.Tools {
		if ts.Name == "" {
			return nil, fmt.Errorf("skill %q: tool with empty name", manifest.Name)
		}
		if seen[ts.Name] {
			return nil, fmt.Errorf("skill %q: duplicate tool name %q", manifest.Name, ts.Name)
		}
		seen[ts.Name] = true

		resolved, err := resolveCommand(dir, ts.Command)
		if err != nil {
			return nil, fmt.Errorf("skill %q tool %q: %w", manifest.Name, ts.Name, err)
		}

		skill.Tools = append(skill.Tools, models.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			Implementation: models.Implementation{
				Command:      ts.Command,
				Args:         ts.Args,
				ResolvedPath: resolved,
				SkillDir:     dir,
			},
		})
	}

	return skill, nil
}

// splitFrontmatter separates YAML frontmatter from the markdown body,
// grounded verbatim on internal/skills/parser.go's bufio.Scanner-based
// delimiter scan.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			closed = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

func validateManifest(m models.SkillManifest) error {
	if m.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	for _, r := range m.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("skill name must be lowercase alphanumeric with hyphens: got %q", m.Name)
		}
	}
	if m.Description == "" {
		return fmt.Errorf("skill description is required")
	}
	return nil
}

// resolveCommand resolves a tool's declared command path relative to
// the skill directory and canonicalizes it, rejecting anything that
// escapes the directory (spec.md §4.5 step 4 / §4.6 step 2).
func resolveCommand(dir, command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("command is required")
	}
	joined := filepath.Join(dir, command)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("command %q escapes skill directory", command)
	}
	return abs, nil
}
