package spout

// Names returns the registered sender names in slot order. names is the
// content of the SpoutSenderNames mapping.
func Names(names []byte) []string {
	var out []string
	for off := 0; off+NameSize <= len(names); off += NameSize {
		if n := readName(names[off : off+NameSize]); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Register adds name to the first free slot. Registering a name that is
// already present succeeds without a second entry.
func Register(names []byte, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}

	free := -1
	for off := 0; off+NameSize <= len(names); off += NameSize {
		switch readName(names[off : off+NameSize]) {
		case name:
			return nil
		case "":
			if free < 0 {
				free = off
			}
		}
	}
	if free < 0 {
		return ErrRegistryFull
	}
	writeName(names[free:free+NameSize], name)
	return nil
}

// Unregister removes name and reports whether it was present.
func Unregister(names []byte, name string) bool {
	found := false
	for off := 0; off+NameSize <= len(names); off += NameSize {
		if readName(names[off:off+NameSize]) == name {
			clear(names[off : off+NameSize])
			found = true
		}
	}
	return found
}

// Active returns the name in the ActiveSenderName mapping.
func Active(active []byte) string {
	return readName(active[:min(len(active), NameSize)])
}

// SetActive writes name into the ActiveSenderName mapping.
func SetActive(active []byte, name string) {
	writeName(active[:min(len(active), NameSize)], name)
}
