// Package app provides save state functionality for the NES emulator.
package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gones/gones/internal/nes"
	"github.com/gones/gones/internal/savestate"
)

// StateManager manages save state slots: it owns slot bookkeeping and a
// small JSON metadata sidecar per slot (so GetSlotInfo can answer without
// decoding a binary save state), while the actual emulator snapshot is a
// binary file written/read through internal/savestate.
type StateManager struct {
	saveDirectory string
	maxSlots      int
	initialized   bool
}

// stateMetadata is the JSON sidecar written next to each binary save state,
// giving GetSlotInfo/HasSaveState something cheap to inspect without
// decoding the gob payload.
type stateMetadata struct {
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	ROMPath     string    `json:"rom_path"`
	ROMChecksum string    `json:"rom_checksum"`
	SlotNumber  int       `json:"slot_number"`
	Description string    `json:"description"`
	FrameCount  uint64    `json:"frame_count"`
	CycleCount  uint64    `json:"cycle_count"`
}

// StateSlotInfo contains information about a save state slot
type StateSlotInfo struct {
	SlotNumber  int       `json:"slot_number"`
	Used        bool      `json:"used"`
	Timestamp   time.Time `json:"timestamp"`
	ROMPath     string    `json:"rom_path"`
	Description string    `json:"description"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
}

// NewStateManager creates a new state manager
func NewStateManager(saveDirectory string) *StateManager {
	manager := &StateManager{
		saveDirectory: saveDirectory,
		maxSlots:      10, // Default to 10 save slots
		initialized:   false,
	}

	if err := manager.initialize(); err != nil {
		fmt.Printf("Warning: State manager initialization failed: %v\n", err)
	}

	return manager
}

// initialize initializes the state manager
func (sm *StateManager) initialize() error {
	if err := os.MkdirAll(sm.saveDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %v", err)
	}

	sm.initialized = true
	return nil
}

// SaveState writes the binary emulator snapshot plus a JSON metadata
// sidecar for slot.
func (sm *StateManager) SaveState(n *nes.Nes, slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d (must be 0-%d)", slot, sm.maxSlots-1)
	}
	if n == nil {
		return fmt.Errorf("nes instance cannot be nil")
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	if err := savestate.Save(n, filePath); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	meta := stateMetadata{
		Version:     "1",
		Timestamp:   time.Now(),
		ROMPath:     romPath,
		ROMChecksum: sm.calculateROMChecksum(romPath),
		SlotNumber:  slot,
		Description: fmt.Sprintf("Save %s", time.Now().Format("2006-01-02 15:04:05")),
		FrameCount:  n.FrameCount(),
		CycleCount:  n.CycleCount(),
	}
	if err := sm.writeMetadata(sm.metadataPath(filePath), meta); err != nil {
		return fmt.Errorf("failed to write save state metadata: %w", err)
	}

	return nil
}

// LoadState restores slot's binary snapshot into n, which must already
// have the save state's ROM loaded.
func (sm *StateManager) LoadState(n *nes.Nes, slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d (must be 0-%d)", slot, sm.maxSlots-1)
	}
	if n == nil {
		return fmt.Errorf("nes instance cannot be nil")
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("save state not found in slot %d", slot)
	}

	if meta, err := sm.readMetadata(sm.metadataPath(filePath)); err == nil {
		if meta.ROMPath != romPath {
			return fmt.Errorf("save state is for a different ROM (%s)", meta.ROMPath)
		}
	}

	if err := savestate.Load(n, filePath); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	return nil
}

func (sm *StateManager) writeMetadata(path string, meta stateMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (sm *StateManager) readMetadata(path string) (stateMetadata, error) {
	var meta stateMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// getSlotFilePath generates the binary save-state file path for a slot.
func (sm *StateManager) getSlotFilePath(slot int, romPath string) string {
	romName := filepath.Base(romPath)
	romNameWithoutExt := romName[:len(romName)-len(filepath.Ext(romName))]
	fileName := fmt.Sprintf("%s_slot_%d.save", romNameWithoutExt, slot)
	return filepath.Join(sm.saveDirectory, fileName)
}

func (sm *StateManager) metadataPath(savePath string) string {
	return savePath + ".meta.json"
}

// calculateROMChecksum returns a SHA-256 hex digest of the ROM file. It is
// recorded in the metadata sidecar; loading a state does not compare it.
func (sm *StateManager) calculateROMChecksum(romPath string) string {
	file, err := os.Open(romPath)
	if err != nil {
		return ""
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetSlotInfo returns information about all save slots
func (sm *StateManager) GetSlotInfo(romPath string) []StateSlotInfo {
	slots := make([]StateSlotInfo, sm.maxSlots)

	for i := 0; i < sm.maxSlots; i++ {
		slotInfo := StateSlotInfo{
			SlotNumber: i,
			Used:       false,
		}

		filePath := sm.getSlotFilePath(i, romPath)
		if stat, err := os.Stat(filePath); err == nil {
			slotInfo.Used = true
			slotInfo.FilePath = filePath
			slotInfo.FileSize = stat.Size()
			slotInfo.Timestamp = stat.ModTime()

			if meta, err := sm.readMetadata(sm.metadataPath(filePath)); err == nil {
				slotInfo.ROMPath = meta.ROMPath
				slotInfo.Description = meta.Description
				slotInfo.Timestamp = meta.Timestamp
			}
		}

		slots[i] = slotInfo
	}

	return slots
}

// DeleteState deletes a save state from a slot
func (sm *StateManager) DeleteState(slot int, romPath string) error {
	if !sm.initialized {
		return fmt.Errorf("state manager not initialized")
	}
	if slot < 0 || slot >= sm.maxSlots {
		return fmt.Errorf("invalid save slot: %d", slot)
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("save state not found in slot %d", slot)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete save state: %v", err)
	}
	os.Remove(sm.metadataPath(filePath)) // best-effort; a missing sidecar is not an error

	return nil
}

// HasSaveState checks if a save state exists in a slot
func (sm *StateManager) HasSaveState(slot int, romPath string) bool {
	if slot < 0 || slot >= sm.maxSlots {
		return false
	}

	filePath := sm.getSlotFilePath(slot, romPath)
	_, err := os.Stat(filePath)
	return err == nil
}

// GetMaxSlots returns the maximum number of save slots
func (sm *StateManager) GetMaxSlots() int {
	return sm.maxSlots
}

// SetMaxSlots sets the maximum number of save slots
func (sm *StateManager) SetMaxSlots(slots int) {
	if slots > 0 {
		sm.maxSlots = slots
	}
}

// GetSaveDirectory returns the save directory path
func (sm *StateManager) GetSaveDirectory() string {
	return sm.saveDirectory
}

// SetSaveDirectory sets the save directory path
func (sm *StateManager) SetSaveDirectory(directory string) error {
	sm.saveDirectory = directory
	return sm.initialize()
}

// ExportState writes a fresh binary save state of n, plus its metadata
// sidecar, to an arbitrary destination path.
func (sm *StateManager) ExportState(n *nes.Nes, filePath string, romPath string) error {
	if err := savestate.Save(n, filePath); err != nil {
		return fmt.Errorf("failed to export state: %w", err)
	}
	meta := stateMetadata{
		Version:     "1",
		Timestamp:   time.Now(),
		ROMPath:     romPath,
		ROMChecksum: sm.calculateROMChecksum(romPath),
		SlotNumber:  -1,
		Description: fmt.Sprintf("Export %s", time.Now().Format("2006-01-02 15:04:05")),
		FrameCount:  n.FrameCount(),
		CycleCount:  n.CycleCount(),
	}
	return sm.writeMetadata(sm.metadataPath(filePath), meta)
}

// ImportState restores an exported save state file into n.
func (sm *StateManager) ImportState(n *nes.Nes, filePath string, romPath string) error {
	if meta, err := sm.readMetadata(sm.metadataPath(filePath)); err == nil {
		if meta.ROMPath != romPath {
			return fmt.Errorf("imported state is for a different ROM (%s)", meta.ROMPath)
		}
	}
	if err := savestate.Load(n, filePath); err != nil {
		return fmt.Errorf("failed to import state: %w", err)
	}
	return nil
}

// Cleanup cleans up state manager resources
func (sm *StateManager) Cleanup() error {
	sm.initialized = false
	return nil
}

// GetStateManagerStats returns statistics about the state manager
func (sm *StateManager) GetStateManagerStats(romPath string) StateManagerStats {
	slots := sm.GetSlotInfo(romPath)

	var usedSlots int
	var totalSize int64
	for _, slot := range slots {
		if slot.Used {
			usedSlots++
			totalSize += slot.FileSize
		}
	}

	return StateManagerStats{
		MaxSlots:      sm.maxSlots,
		UsedSlots:     usedSlots,
		FreeSlots:     sm.maxSlots - usedSlots,
		TotalSize:     totalSize,
		SaveDirectory: sm.saveDirectory,
		Initialized:   sm.initialized,
	}
}

// StateManagerStats contains state manager statistics
type StateManagerStats struct {
	MaxSlots      int    `json:"max_slots"`
	UsedSlots     int    `json:"used_slots"`
	FreeSlots     int    `json:"free_slots"`
	TotalSize     int64  `json:"total_size"`
	SaveDirectory string `json:"save_directory"`
	Initialized   bool   `json:"initialized"`
}
