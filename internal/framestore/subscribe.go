package framestore

// Subscribe registers ch to receive a Change after every content change.
// Delivery never blocks: a full channel drops the notification.
func (s *Store) Subscribe(id string, ch chan<- Change) error {
	if ch == nil {
		return ErrNilChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[id]; exists {
		return ErrSubscriberExists
	}
	s.subs[id] = ch
	return nil
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Debug("dropped store notification", "subscriber", id)
		}
	}
}
